// Package config provides application configuration with multi-source
// priority.
//
// Sources, highest priority first:
//  1. Environment variables (SHEAF_* plus DATABASE_URL)
//  2. Config file (~/.sheaf/config.yaml or ./config.yaml)
//  3. Defaults
//
// Sentinel errors support errors.Is checks; validation happens eagerly
// in Load so a misconfigured process fails at startup, not mid-request.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the provider API key is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates an unsupported model provider.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates an empty or malformed model name.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates an empty embedder model.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates an empty PostgreSQL host.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates a PostgreSQL port out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates an empty database name.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates an unknown sslmode value.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidChunking indicates inconsistent chunker tuning.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidEmbedBatch indicates a non-positive embedding batch size.
	ErrInvalidEmbedBatch = errors.New("invalid embedding batch size")

	// ErrInvalidRetrieval indicates inconsistent retrieval tuning.
	ErrInvalidRetrieval = errors.New("invalid retrieval configuration")

	// ErrInvalidWorkers indicates inconsistent worker pool tuning.
	ErrInvalidWorkers = errors.New("invalid worker configuration")
)

// Supported model providers.
const (
	ProviderGoogleAI = "googleai"
)

const (
	// DefaultEmbedderModel truncates its output to EmbedderDimension
	// components via OutputDimensionality.
	DefaultEmbedderModel = "gemini-embedding-001"

	// EmbedderDimension is the vector width of the pgvector schema.
	// Changing it requires a migration of document_chunks.embedding.
	EmbedderDimension = 1536
)

// Config stores the full application configuration.
type Config struct {
	// Model provider configuration.
	Provider      string `mapstructure:"provider"`
	ModelName     string `mapstructure:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model"`

	// PostgreSQL connection settings. DATABASE_URL overrides these.
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Chunking parameters, in characters.
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	ChunkMinSize int `mapstructure:"chunk_min_size"`

	// Embedding pipeline tuning.
	EmbedBatchSize      int `mapstructure:"embed_batch_size"`
	EmbedRequestsPerMin int `mapstructure:"embed_requests_per_min"`

	// Retrieval tuning.
	SearchTopK       int `mapstructure:"search_top_k"`
	SearchMaxTopK    int `mapstructure:"search_max_top_k"`
	RAGContextWindow int `mapstructure:"rag_context_window"`
	RAGHistoryLimit  int `mapstructure:"rag_history_limit"`

	// Blob storage.
	BlobDir        string `mapstructure:"blob_dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`

	// Worker pool.
	WorkerCount     int           `mapstructure:"worker_count"`
	TaskSoftTimeout time.Duration `mapstructure:"task_soft_timeout"`
	TaskHardTimeout time.Duration `mapstructure:"task_hard_timeout"`
	TaskPollEvery   time.Duration `mapstructure:"task_poll_every"`

	// HTTP server.
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load reads, merges, and validates the configuration.
func Load(logger *slog.Logger) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".sheaf")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		logger.Debug("no config file found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("provider", ProviderGoogleAI)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", DefaultEmbedderModel)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "sheaf")
	v.SetDefault("postgres_password", "sheaf_dev_password")
	v.SetDefault("postgres_db_name", "sheaf")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("chunk_size", 2000)
	v.SetDefault("chunk_overlap", 200)
	v.SetDefault("chunk_min_size", 10)

	v.SetDefault("embed_batch_size", 100)
	v.SetDefault("embed_requests_per_min", 100)

	v.SetDefault("search_top_k", 5)
	v.SetDefault("search_max_top_k", 20)
	v.SetDefault("rag_context_window", 10)
	v.SetDefault("rag_history_limit", 10)

	v.SetDefault("blob_dir", filepath.Join(configDir, "blobs"))
	v.SetDefault("max_upload_bytes", int64(50<<20))

	v.SetDefault("worker_count", 4)
	v.SetDefault("task_soft_timeout", 2*time.Minute)
	v.SetDefault("task_hard_timeout", 10*time.Minute)
	v.SetDefault("task_poll_every", time.Second)

	v.SetDefault("listen_addr", ":8080")
}

// bindEnv binds the SHEAF_* environment overrides. The keys are
// hardcoded, so a bind failure is a programming error.
func bindEnv(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "SHEAF_PROVIDER")
	mustBind("model_name", "SHEAF_MODEL_NAME")
	mustBind("embedder_model", "SHEAF_EMBEDDER_MODEL")
	mustBind("postgres_host", "SHEAF_POSTGRES_HOST")
	mustBind("postgres_port", "SHEAF_POSTGRES_PORT")
	mustBind("postgres_user", "SHEAF_POSTGRES_USER")
	mustBind("postgres_password", "SHEAF_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "SHEAF_POSTGRES_DB_NAME")
	mustBind("postgres_ssl_mode", "SHEAF_POSTGRES_SSL_MODE")
	mustBind("blob_dir", "SHEAF_BLOB_DIR")
	mustBind("listen_addr", "SHEAF_LISTEN_ADDR")
	mustBind("worker_count", "SHEAF_WORKER_COUNT")

	// GEMINI_API_KEY is read directly by Genkit, not via Viper.
	// Validate only checks its presence for the googleai provider.
}
