package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/sheaf-ai/sheaf/db"
	"github.com/sheaf-ai/sheaf/internal/blob"
	"github.com/sheaf-ai/sheaf/internal/chunker"
	"github.com/sheaf-ai/sheaf/internal/collection"
	"github.com/sheaf-ai/sheaf/internal/config"
	"github.com/sheaf-ai/sheaf/internal/conversation"
	"github.com/sheaf-ai/sheaf/internal/document"
	"github.com/sheaf-ai/sheaf/internal/embed"
	"github.com/sheaf-ai/sheaf/internal/parser"
	"github.com/sheaf-ai/sheaf/internal/pipeline"
	"github.com/sheaf-ai/sheaf/internal/provider/googleai"
	"github.com/sheaf-ai/sheaf/internal/rag"
	"github.com/sheaf-ai/sheaf/internal/search"
	"github.com/sheaf-ai/sheaf/internal/status"
	"github.com/sheaf-ai/sheaf/internal/task"
)

// Setup creates and initialises the application. On failure everything
// already built is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	a.Documents = document.NewStore(pool, logger)
	a.Collections = collection.NewStore(pool, logger)
	a.Conversations = conversation.NewStore(pool, logger)

	blobs, err := blob.NewLocal(cfg.BlobDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open blob storage: %w", err)
	}
	a.Blobs = blobs

	provider, err := googleai.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialise model provider: %w", err)
	}

	a.Parser = parser.NewRegistry(parser.ExecRunner(), logger)
	a.Chunker = chunker.New(chunker.Config{
		Size:    cfg.ChunkSize,
		Overlap: cfg.ChunkOverlap,
		MinSize: cfg.ChunkMinSize,
	}, logger)

	a.Embeddings = embed.NewGenerator(provider, a.Documents, embed.Config{
		BatchSize: cfg.EmbedBatchSize,
		Dimension: config.EmbedderDimension,
		Limiter:   embedLimiter(cfg),
	}, logger)

	a.Searcher = search.NewSearcher(pool, a.Embeddings, logger)
	a.RAG = rag.New(a.Searcher, provider, a.Conversations, rag.Config{
		PerCollectionTopK: cfg.SearchTopK,
		ContextWindow:     cfg.RAGContextWindow,
		HistoryLimit:      cfg.RAGHistoryLimit,
	}, logger)

	a.Broker = status.NewBroker(logger)
	a.Queue = task.NewQueue(pool, logger)
	a.Pipeline = pipeline.New(a.Documents, a.Blobs, a.Parser, a.Chunker,
		a.Embeddings, a.Broker, a.Queue, logger)

	logger.Info("application ready",
		"model", cfg.ModelName, "embedder", cfg.EmbedderModel)
	return a, nil
}

func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// embedLimiter spreads the per-minute request budget evenly, with a
// small burst so a fresh worker does not stall on its first batch.
func embedLimiter(cfg *config.Config) *rate.Limiter {
	rpm := cfg.EmbedRequestsPerMin
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 2)
}
