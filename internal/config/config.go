package config

import (
	"log/slog"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration shared by the chat server, the kb CLI and the chatlog worker.
type Config struct {
	// Server
	Port      int    `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // "json" or "text"

	// Vector index
	IndexProvider    string `env:"INDEX_PROVIDER" envDefault:"qdrant"` // "qdrant", "memory" or "postgres"
	QdrantURL        string `env:"QDRANT_URL" envDefault:"http://localhost:6334"`
	QdrantAPIKey     string `env:"QDRANT_API_KEY"`
	QdrantCollection string `env:"QDRANT_COLLECTION" envDefault:"itsmehi_collection"`
	VectorSize       int    `env:"VECTOR_SIZE" envDefault:"384"`
	MemorySnapshot   string `env:"MEMORY_SNAPSHOT" envDefault:"data/index.json"`

	// Store (pgvector index and conversation journal)
	DBURL string `env:"DB_URL"`

	// Embeddings
	EmbeddingProvider string        `env:"EMBEDDING_PROVIDER" envDefault:"huggingface"` // "huggingface" or "openai"
	EmbeddingModel    string        `env:"EMBEDDING_MODEL"`                             // empty selects the provider default
	HFToken           string        `env:"HF_API_TOKEN"`
	HFInferenceURL    string        `env:"HF_INFERENCE_URL"` // dedicated endpoint or local TGI
	EmbedTimeout      time.Duration `env:"EMBED_TIMEOUT" envDefault:"30s"`

	// LLM
	LLMProvider     string        `env:"LLM_PROVIDER" envDefault:"huggingface"` // "huggingface" or "openai"
	LLMModel        string        `env:"LLM_MODEL"`                             // empty selects the provider default
	OpenAIKey       string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `env:"OPENAI_BASE_URL"` // any OpenAI-compatible endpoint
	MaxNewTokens    int           `env:"MAX_NEW_TOKENS" envDefault:"256"`
	GenerateTimeout time.Duration `env:"GENERATE_TIMEOUT" envDefault:"60s"`

	// Pipeline
	TopK             int    `env:"TOP_K" envDefault:"3"`
	MaxContextLength int    `env:"MAX_CONTEXT_LENGTH" envDefault:"3000"`
	DefaultLanguage  string `env:"DEFAULT_LANGUAGE" envDefault:"es"`

	// Cache
	CacheProvider string `env:"CACHE_PROVIDER" envDefault:"redis"` // "redis" or "none"
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	CacheTTL      int    `env:"CACHE_TTL" envDefault:"3600"` // seconds

	// Journal
	JournalProvider string `env:"JOURNAL_PROVIDER" envDefault:"none"` // "none", "nats" or "postgres"
	QueueURL        string `env:"QUEUE_URL" envDefault:"nats://localhost:4222"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}
