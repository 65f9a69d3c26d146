package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sheaf-ai/sheaf/internal/api"
	"github.com/sheaf-ai/sheaf/internal/app"
	"github.com/sheaf-ai/sheaf/internal/config"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 2 * time.Minute // uploads can be large
	writeTimeout      = 5 * time.Minute // SSE streaming needs a long timeout
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

// runServe starts the HTTP API server with the pipeline workers
// running in the same process.
func runServe(logger *slog.Logger) error {
	cfg, err := config.Load(logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr, err := parseServeAddr(cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting HTTP API server", "version", Version)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	workers := a.Workers()
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		workers.Run(ctx)
	}()

	apiServer := api.NewServer(api.ServerConfig{
		Logger:         logger,
		Collections:    a.Collections,
		Documents:      a.Documents,
		Conversations:  a.Conversations,
		Blobs:          a.Blobs,
		Formats:        a.Parser,
		Queue:          a.Queue,
		Searcher:       a.Searcher,
		RAG:            a.RAG,
		Events:         a.Broker,
		MaxUploadBytes: cfg.MaxUploadBytes,
		SearchTopK:     cfg.SearchTopK,
		SearchMaxTopK:  cfg.SearchMaxTopK,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           apiServer,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", addr,
		"api", "/api/v1/*",
		"health", "/health",
		"workers", cfg.WorkerCount,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		<-workersDone
		return nil
	case err := <-errCh:
		cancel()
		<-workersDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
