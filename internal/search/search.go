// Package search runs similarity queries over embedded chunks with
// pgvector cosine distance.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// DefaultTopK is how many results a search returns when the caller
// does not say otherwise.
const DefaultTopK = 5

// Embedder turns the query text into a vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Result is one matching chunk with its source document and the cosine
// similarity against the query, rounded to four decimals.
type Result struct {
	ChunkID      uuid.UUID
	ChunkIndex   int
	Content      string
	PageNumbers  []int32
	DocumentID   uuid.UUID
	DocumentName string
	Similarity   float64
}

// Searcher answers similarity queries within a single collection.
type Searcher struct {
	pool     *pgxpool.Pool
	embedder Embedder
	logger   *slog.Logger
}

// NewSearcher creates a Searcher.
func NewSearcher(pool *pgxpool.Pool, embedder Embedder, logger *slog.Logger) *Searcher {
	return &Searcher{pool: pool, embedder: embedder, logger: logger}
}

// Search embeds the query and returns the topK most similar chunks in
// the collection. Only live documents owned by ownerID participate,
// and chunks without embeddings never match. Results are ordered by
// ascending cosine distance with chunk ID as the tiebreaker, so equal
// scores rank deterministically.
func (s *Searcher) Search(ctx context.Context, collectionID, ownerID uuid.UUID, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed search query: %w", err)
	}

	const sql = `
		SELECT c.id, c.chunk_index, c.content, c.page_numbers,
			d.id, d.filename,
			c.embedding <=> $1 AS distance
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.collection_id = $2
			AND d.owner_id = $3
			AND d.is_deleted = false
			AND c.embedding IS NOT NULL
		ORDER BY distance, c.id
		LIMIT $4`

	rows, err := s.pool.Query(ctx, sql, pgvector.NewVector(vec), collectionID, ownerID, topK)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var distance float64
		err := rows.Scan(&r.ChunkID, &r.ChunkIndex, &r.Content, &r.PageNumbers,
			&r.DocumentID, &r.DocumentName, &distance)
		if err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		r.Similarity = roundTo(1-distance, 4)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read search results: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("similarity search",
			"collection_id", collectionID,
			"top_k", topK,
			"results", len(results))
	}
	return results, nil
}

func roundTo(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
