// Package cmd provides the sheaf CLI commands.
//
// Commands:
//   - serve: HTTP API server with the worker pool running in-process
//   - worker: task workers only, no HTTP listener
//   - migrate: apply pending database migrations and exit
//
// Signal handling and graceful shutdown are implemented for the
// long-running commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sheaf-ai/sheaf/internal/log"
)

// Execute is the main entry point for the sheaf binary.
func Execute() error {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(logger)
	case "worker":
		return runWorker(logger)
	case "migrate":
		return runMigrate(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Sheaf - document knowledge base with retrieval-augmented chat")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  sheaf serve [addr]  Start the HTTP API server (default: :8080)")
	fmt.Println("  sheaf worker        Run pipeline workers without the HTTP server")
	fmt.Println("  sheaf migrate       Apply pending database migrations")
	fmt.Println("  sheaf --version     Show version information")
	fmt.Println("  sheaf --help        Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY      Required: Gemini API key")
	fmt.Println("  DATABASE_URL        Optional: overrides the postgres_* settings")
	fmt.Println("  DEBUG               Optional: enable debug logging")
	fmt.Println()
	fmt.Println("Configuration is read from ~/.sheaf/config.yaml or ./config.yaml;")
	fmt.Println("SHEAF_* environment variables override both.")
}
