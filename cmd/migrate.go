package cmd

import (
	"fmt"
	"log/slog"

	"github.com/sheaf-ai/sheaf/db"
	"github.com/sheaf-ai/sheaf/internal/config"
)

// runMigrate applies pending migrations and exits. serve and worker
// also migrate on startup; this exists for deploy pipelines that
// migrate before rolling the fleet.
func runMigrate(logger *slog.Logger) error {
	cfg, err := config.Load(logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("migrations up to date")
	return nil
}
