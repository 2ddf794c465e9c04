package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"itsmehi/internal/cache"
	"itsmehi/internal/config"
	"itsmehi/internal/embeddings"
	"itsmehi/internal/index"
	"itsmehi/internal/index/memory"
	"itsmehi/internal/index/qdrant"
	"itsmehi/internal/journal"
	"itsmehi/internal/llm"
	"itsmehi/internal/logger"
	"itsmehi/internal/queue"
	"itsmehi/internal/rag"
	"itsmehi/internal/store"
)

// Deps bundles the runtime dependencies of the chat server.
type Deps struct {
	Config    config.Config
	Log       *slog.Logger
	Index     index.Index
	Embedder  embeddings.Embedder
	Generator llm.Generator
	Cache     cache.Cache
	Journal   journal.Journal
	Agent     *rag.Agent

	closers []func() error
}

// Close releases every connection opened by Build, in reverse order.
func (d Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.Log.Warn("failed to close dependency", "err", err)
		}
	}
}

// LoadConfig reads .env (when present) and the environment, and builds the logger.
func LoadConfig() (config.Config, *slog.Logger, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config.Config{}, nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg := config.Load()
	return cfg, logger.New(cfg.LogLevel, cfg.LogFormat), nil
}

// Build loads env, config, and every component the question pipeline needs.
func Build() (Deps, error) {
	cfg, log, err := LoadConfig()
	if err != nil {
		return Deps{}, err
	}
	d := Deps{Config: cfg, Log: log}

	var pg *store.PostgresStore
	if cfg.IndexProvider == "postgres" || cfg.JournalProvider == "postgres" {
		pg, err = buildStore(cfg, log)
		if err != nil {
			return Deps{}, fmt.Errorf("failed to initialize store: %w", err)
		}
		d.closers = append(d.closers, pg.Close)
	}

	d.Index, err = buildIndex(cfg, log, pg)
	if err != nil {
		d.Close()
		return Deps{}, fmt.Errorf("failed to initialize index: %w", err)
	}
	if pg == nil || d.Index != index.Index(pg) {
		d.closers = append(d.closers, d.Index.Close)
	}
	d.Embedder, err = buildEmbedder(cfg, log)
	if err != nil {
		d.Close()
		return Deps{}, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	d.Generator, err = buildGenerator(cfg, log)
	if err != nil {
		d.Close()
		return Deps{}, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	d.Cache = buildCache(cfg, log)
	d.closers = append(d.closers, d.Cache.Close)

	var nc *nats.Conn
	d.Journal, nc, err = buildJournal(cfg, log, pg)
	if err != nil {
		d.Close()
		return Deps{}, fmt.Errorf("failed to initialize journal: %w", err)
	}
	if nc != nil {
		d.closers = append(d.closers, func() error { return nc.Drain() })
	}

	d.Agent = rag.NewAgent(log, d.Embedder, d.Index, d.Generator, d.Cache, d.Journal, rag.Options{
		TopK:             cfg.TopK,
		MaxContextLength: cfg.MaxContextLength,
		DefaultLanguage:  cfg.DefaultLanguage,
		CacheTTL:         time.Duration(cfg.CacheTTL) * time.Second,
	})
	return d, nil
}

// KBDeps bundles what the kb CLI needs to seed and inspect the index.
type KBDeps struct {
	Config   config.Config
	Log      *slog.Logger
	Index    index.Index
	Embedder embeddings.Embedder
	// Persist saves index state that does not persist itself. Nil when nothing needs saving.
	Persist func() error
	// OpenConversations connects to the conversation log. Nil when DB_URL is unset.
	OpenConversations func() (store.Store, error)
}

// BuildKB builds the index and embedder selected by the environment.
func BuildKB() (KBDeps, error) {
	cfg, log, err := LoadConfig()
	if err != nil {
		return KBDeps{}, err
	}
	var pg *store.PostgresStore
	if cfg.IndexProvider == "postgres" {
		if pg, err = buildStore(cfg, log); err != nil {
			return KBDeps{}, fmt.Errorf("failed to initialize store: %w", err)
		}
	}
	idx, err := buildIndex(cfg, log, pg)
	if err != nil {
		return KBDeps{}, fmt.Errorf("failed to initialize index: %w", err)
	}
	emb, err := buildEmbedder(cfg, log)
	if err != nil {
		_ = idx.Close()
		return KBDeps{}, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	d := KBDeps{Config: cfg, Log: log, Index: idx, Embedder: emb}
	if mem, ok := idx.(*memory.Storage); ok {
		d.Persist = func() error { return mem.Save(cfg.MemorySnapshot) }
	}
	if cfg.DBURL != "" {
		d.OpenConversations = func() (store.Store, error) {
			if pg != nil {
				return pg, nil
			}
			return buildStore(cfg, log)
		}
	}
	return d, nil
}

// ChatlogDeps bundles the chatlog worker's dependencies.
type ChatlogDeps struct {
	Config config.Config
	Log    *slog.Logger
	Store  store.Store
	Queue  queue.Queue
	Conn   *nats.Conn
}

// BuildChatlog connects to NATS and Postgres for the conversation worker.
func BuildChatlog() (ChatlogDeps, error) {
	cfg, log, err := LoadConfig()
	if err != nil {
		return ChatlogDeps{}, err
	}
	st, err := buildStore(cfg, log)
	if err != nil {
		return ChatlogDeps{}, fmt.Errorf("failed to initialize store: %w", err)
	}
	nc, err := connectNATS(cfg, log)
	if err != nil {
		_ = st.Close()
		return ChatlogDeps{}, fmt.Errorf("failed to initialize queue: %w", err)
	}
	return ChatlogDeps{
		Config: cfg,
		Log:    log,
		Store:  st,
		Queue:  queue.NewNATS(log, nc, queue.DefaultPrefix),
		Conn:   nc,
	}, nil
}

func buildStore(cfg config.Config, log *slog.Logger) (*store.PostgresStore, error) {
	if cfg.DBURL == "" {
		return nil, fmt.Errorf("DB_URL is required for the Postgres store")
	}
	db, err := store.NewPostgres(cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
	}
	log.Info("using Postgres store")
	return db, nil
}

func buildIndex(cfg config.Config, log *slog.Logger, pg *store.PostgresStore) (index.Index, error) {
	switch cfg.IndexProvider {
	case "qdrant":
		st, err := qdrant.NewStorage(qdrant.Config{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
		})
		if err != nil {
			return nil, err
		}
		log.Info("using Qdrant index", "url", cfg.QdrantURL, "collection", cfg.QdrantCollection)
		return st, nil
	case "memory":
		st := memory.NewStorage()
		if err := st.Load(cfg.MemorySnapshot); err != nil {
			return nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
		log.Info("using in-memory index", "snapshot", cfg.MemorySnapshot, "passages", st.Len())
		return st, nil
	case "postgres":
		if pg == nil {
			return nil, fmt.Errorf("INDEX_PROVIDER=postgres requires a store")
		}
		log.Info("using pgvector index")
		return pg, nil
	default:
		return nil, fmt.Errorf("invalid INDEX_PROVIDER: %s (valid options: qdrant, memory, postgres)", cfg.IndexProvider)
	}
}

func openAIOptions(cfg config.Config) []option.RequestOption {
	if cfg.OpenAIBaseURL == "" {
		return nil
	}
	return []option.RequestOption{option.WithBaseURL(cfg.OpenAIBaseURL)}
}

func buildEmbedder(cfg config.Config, log *slog.Logger) (embeddings.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "huggingface":
		log.Info("using Hugging Face embedder", "model", cfg.EmbeddingModel)
		return embeddings.NewHuggingFaceEmbedder(cfg.HFToken, cfg.EmbeddingModel, cfg.VectorSize,
			embeddings.WithInferenceEndpoint(cfg.HFInferenceURL)).WithTimeout(cfg.EmbedTimeout), nil
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when EMBEDDING_PROVIDER=openai")
		}
		embedder, err := embeddings.NewOpenAIEmbedder(cfg.OpenAIKey, openai.EmbeddingModel(cfg.EmbeddingModel), cfg.VectorSize, openAIOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI embedder: %w", err)
		}
		log.Info("using OpenAI embedder", "model", cfg.EmbeddingModel)
		return embedder.WithTimeout(cfg.EmbedTimeout), nil
	default:
		return nil, fmt.Errorf("invalid EMBEDDING_PROVIDER: %s (valid options: huggingface, openai)", cfg.EmbeddingProvider)
	}
}

func buildGenerator(cfg config.Config, log *slog.Logger) (llm.Generator, error) {
	switch cfg.LLMProvider {
	case "huggingface":
		log.Info("using Hugging Face generator", "model", cfg.LLMModel)
		return llm.NewHuggingFaceGenerator(cfg.HFToken, cfg.LLMModel, cfg.MaxNewTokens,
			llm.WithInferenceEndpoint(cfg.HFInferenceURL)).WithTimeout(cfg.GenerateTimeout), nil
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
		client, err := llm.NewOpenAIGenerator(cfg.OpenAIKey, openai.ChatModel(cfg.LLMModel), cfg.MaxNewTokens, openAIOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
		}
		log.Info("using OpenAI LLM client", "model", cfg.LLMModel, "base_url", cfg.OpenAIBaseURL)
		return client.WithTimeout(cfg.GenerateTimeout), nil
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER: %s (valid options: huggingface, openai)", cfg.LLMProvider)
	}
}

// buildCache never fails: an unreachable Redis degrades to no caching.
func buildCache(cfg config.Config, log *slog.Logger) cache.Cache {
	switch cfg.CacheProvider {
	case "redis":
		c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Warn("redis unavailable, caching disabled", "addr", cfg.RedisAddr, "err", err)
			return cache.NewNoOpCache()
		}
		log.Info("using Redis cache", "addr", cfg.RedisAddr)
		return c
	case "none", "":
		return cache.NewNoOpCache()
	default:
		log.Warn("unknown CACHE_PROVIDER, caching disabled", "provider", cfg.CacheProvider)
		return cache.NewNoOpCache()
	}
}

func buildJournal(cfg config.Config, log *slog.Logger, pg *store.PostgresStore) (journal.Journal, *nats.Conn, error) {
	switch cfg.JournalProvider {
	case "nats":
		nc, err := connectNATS(cfg, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using NATS journal", "subject", queue.Subject(queue.DefaultPrefix, queue.TaskTypeConversation))
		return journal.NewQueue(queue.NewNATS(log, nc, queue.DefaultPrefix)), nc, nil
	case "postgres":
		if pg == nil {
			return nil, nil, fmt.Errorf("JOURNAL_PROVIDER=postgres requires a store")
		}
		log.Info("using Postgres journal")
		return journal.NewStore(pg), nil, nil
	case "none", "":
		return journal.NoOp{}, nil, nil
	default:
		return nil, nil, fmt.Errorf("invalid JOURNAL_PROVIDER: %s (valid options: none, nats, postgres)", cfg.JournalProvider)
	}
}

func connectNATS(cfg config.Config, log *slog.Logger) (*nats.Conn, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("QUEUE_URL is required for NATS")
	}
	nc, err := nats.Connect(cfg.QueueURL, nats.Name("itsmehi"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Info("connected to NATS", "url", cfg.QueueURL)
	return nc, nil
}
