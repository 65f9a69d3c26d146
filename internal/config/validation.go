package config

import (
	"fmt"
	"os"
)

var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration for internal consistency. It wraps
// sentinel errors so callers can branch with errors.Is.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.Provider != ProviderGoogleAI {
		return fmt.Errorf("%w: %q (supported: %s)", ErrInvalidProvider, c.Provider, ProviderGoogleAI)
	}
	if c.ModelName == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder model is empty", ErrInvalidEmbedderModel)
	}
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrMissingAPIKey)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size)", ErrInvalidChunking, c.ChunkOverlap)
	}
	if c.ChunkMinSize < 1 || c.ChunkMinSize > c.ChunkSize {
		return fmt.Errorf("%w: chunk_min_size %d must be in [1, chunk_size]", ErrInvalidChunking, c.ChunkMinSize)
	}

	if c.EmbedBatchSize < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidEmbedBatch, c.EmbedBatchSize)
	}

	if c.SearchTopK < 1 {
		return fmt.Errorf("%w: search_top_k must be positive, got %d", ErrInvalidRetrieval, c.SearchTopK)
	}
	if c.SearchMaxTopK < c.SearchTopK {
		return fmt.Errorf("%w: search_max_top_k %d below search_top_k %d", ErrInvalidRetrieval, c.SearchMaxTopK, c.SearchTopK)
	}
	if c.RAGContextWindow < 1 {
		return fmt.Errorf("%w: rag_context_window must be positive, got %d", ErrInvalidRetrieval, c.RAGContextWindow)
	}
	if c.RAGHistoryLimit < 0 {
		return fmt.Errorf("%w: rag_history_limit must not be negative, got %d", ErrInvalidRetrieval, c.RAGHistoryLimit)
	}

	if c.WorkerCount < 1 {
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidWorkers, c.WorkerCount)
	}
	if c.TaskHardTimeout < c.TaskSoftTimeout {
		return fmt.Errorf("%w: hard timeout %s below soft timeout %s", ErrInvalidWorkers, c.TaskHardTimeout, c.TaskSoftTimeout)
	}

	return nil
}
