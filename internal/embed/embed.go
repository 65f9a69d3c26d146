// Package embed turns chunk text into vectors and persists them,
// batching provider calls and tolerating partial failure.
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/time/rate"

	"github.com/sheaf-ai/sheaf/internal/document"
)

// DefaultBatchSize is how many chunk texts go into one provider call.
const DefaultBatchSize = 100

// Provider produces embeddings for a batch of texts, one vector per
// text, in input order.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkWriter persists a single chunk's embedding.
type ChunkWriter interface {
	SetChunkEmbedding(ctx context.Context, chunkID uuid.UUID, vec pgvector.Vector, at time.Time) error
}

// Generator embeds document chunks in batches. Each vector is written
// as soon as its batch succeeds, so a mid-run failure keeps all
// progress made before it.
type Generator struct {
	provider  Provider
	writer    ChunkWriter
	batchSize int
	dimension int
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// Config tunes a Generator. Zero BatchSize falls back to the default;
// a nil Limiter disables provider rate limiting; zero Dimension skips
// the width check.
type Config struct {
	BatchSize int
	Dimension int
	Limiter   *rate.Limiter
}

// NewGenerator creates a Generator writing through writer.
func NewGenerator(provider Provider, writer ChunkWriter, cfg Config, logger *slog.Logger) *Generator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Generator{
		provider:  provider,
		writer:    writer,
		batchSize: cfg.BatchSize,
		dimension: cfg.Dimension,
		limiter:   cfg.Limiter,
		logger:    logger,
	}
}

// EmbedQuery embeds a single query text.
func (g *Generator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	vecs, err := g.provider.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: provider returned %d vectors, want 1", len(vecs))
	}
	if err := g.checkDimension(vecs[0]); err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedChunks embeds every chunk and persists each vector with an
// indexed-at timestamp. It returns how many chunks were embedded and
// written. On failure the count covers the full batches completed
// before it; callers distinguish partial from total failure by the
// count, not the error.
func (g *Generator) EmbedChunks(ctx context.Context, chunks []*document.Chunk) (int, error) {
	succeeded := 0
	for batchStart := 0; batchStart < len(chunks); batchStart += g.batchSize {
		batch := chunks[batchStart:min(batchStart+g.batchSize, len(chunks))]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		if err := g.wait(ctx); err != nil {
			return succeeded, err
		}
		vecs, err := g.provider.EmbedBatch(ctx, texts)
		if err != nil {
			return succeeded, fmt.Errorf("embed batch at chunk %d: %w", batchStart, err)
		}
		if len(vecs) != len(batch) {
			return succeeded, fmt.Errorf("embed batch at chunk %d: provider returned %d vectors for %d texts",
				batchStart, len(vecs), len(batch))
		}

		now := time.Now().UTC()
		for i, c := range batch {
			if err := g.checkDimension(vecs[i]); err != nil {
				return succeeded, err
			}
			if err := g.writer.SetChunkEmbedding(ctx, c.ID, pgvector.NewVector(vecs[i]), now); err != nil {
				return succeeded, fmt.Errorf("store embedding for chunk %d: %w", c.Index, err)
			}
			succeeded++
		}

		if g.logger != nil {
			g.logger.Debug("embedded batch",
				"batch_start", batchStart,
				"batch_size", len(batch),
				"total_done", succeeded)
		}
	}
	return succeeded, nil
}

func (g *Generator) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("embedding rate limit: %w", err)
	}
	return nil
}

func (g *Generator) checkDimension(vec []float32) error {
	if g.dimension > 0 && len(vec) != g.dimension {
		return fmt.Errorf("provider returned %d-dimensional vector, schema expects %d", len(vec), g.dimension)
	}
	return nil
}
