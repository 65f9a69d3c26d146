// Package app assembles the application: database, stores, parsers,
// the embedding pipeline, retrieval and the task queue. Setup builds
// everything and Close tears it down.
package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sheaf-ai/sheaf/internal/blob"
	"github.com/sheaf-ai/sheaf/internal/chunker"
	"github.com/sheaf-ai/sheaf/internal/collection"
	"github.com/sheaf-ai/sheaf/internal/config"
	"github.com/sheaf-ai/sheaf/internal/conversation"
	"github.com/sheaf-ai/sheaf/internal/document"
	"github.com/sheaf-ai/sheaf/internal/embed"
	"github.com/sheaf-ai/sheaf/internal/parser"
	"github.com/sheaf-ai/sheaf/internal/pipeline"
	"github.com/sheaf-ai/sheaf/internal/rag"
	"github.com/sheaf-ai/sheaf/internal/search"
	"github.com/sheaf-ai/sheaf/internal/status"
	"github.com/sheaf-ai/sheaf/internal/task"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Pool          *pgxpool.Pool
	Documents     *document.Store
	Collections   *collection.Store
	Conversations *conversation.Store
	Blobs         blob.Store
	Parser        *parser.Registry
	Chunker       *chunker.Chunker
	Embeddings    *embed.Generator
	Searcher      *search.Searcher
	RAG           *rag.Orchestrator
	Broker        *status.Broker
	Queue         *task.Queue
	Pipeline      *pipeline.Controller
}

// Close releases everything Setup built. Safe to call on a partially
// initialised App.
func (a *App) Close() {
	if a.Broker != nil {
		a.Broker.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
}

// Workers builds the task pool with the pipeline handlers registered.
func (a *App) Workers() *task.Pool {
	pool := task.NewPool(a.Queue, task.PoolConfig{
		Workers:      a.Config.WorkerCount,
		PollInterval: a.Config.TaskPollEvery,
		SoftTimeout:  a.Config.TaskSoftTimeout,
		HardTimeout:  a.Config.TaskHardTimeout,
	}, a.Logger)

	pool.Register(task.NameProcess, func(ctx context.Context, t *task.Task) error {
		return a.Pipeline.Process(ctx, t.DocumentID)
	})
	pool.Register(task.NameIndex, func(ctx context.Context, t *task.Task) error {
		return a.Pipeline.Index(ctx, t.DocumentID)
	})
	return pool
}
