package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/sheaf-ai/sheaf/internal/app"
	"github.com/sheaf-ai/sheaf/internal/config"
)

// runWorker runs the pipeline workers without an HTTP listener, for
// deployments that scale ingestion separately from serving.
func runWorker(logger *slog.Logger) error {
	cfg, err := config.Load(logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting pipeline workers", "version", Version, "workers", cfg.WorkerCount)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	a.Workers().Run(ctx)
	logger.Info("workers stopped")
	return nil
}
