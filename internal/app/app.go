// Package app builds the components shared by the server and indexer binaries
// from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/bull/text2sql-server/internal/cache"
	"github.com/bull/text2sql-server/internal/config"
	"github.com/bull/text2sql-server/internal/embedding"
	"github.com/bull/text2sql-server/internal/indexer"
	"github.com/bull/text2sql-server/internal/llm"
	"github.com/bull/text2sql-server/internal/metadata"
	"github.com/bull/text2sql-server/internal/storage"
)

// Providers holds the embedding and completion clients of the configured vendor.
type Providers struct {
	Embedder embedding.Provider
	Chat     llm.Provider
	closers  []func() error
}

// NewProviders creates the clients for cfg.Provider. Both share one
// underlying vendor client.
func NewProviders(ctx context.Context, cfg config.LLMConfig) (*Providers, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		client, err := embedding.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		return &Providers{
			Embedder: embedding.NewEmbedder(client, cfg.OpenAIEmbeddingModel, 0),
			Chat:     llm.NewOpenAIProvider(client.Client(), cfg.OpenAIChatModel),
		}, nil

	case config.ProviderGemini:
		client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return &Providers{
			Embedder: embedding.NewGeminiEmbedder(client, cfg.GeminiEmbeddingModel),
			Chat:     llm.NewGeminiProvider(client, cfg.GeminiChatModel),
			closers:  []func() error{client.Close},
		}, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// Close releases vendor clients that hold connections.
func (p *Providers) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Options returns the completion options from cfg.
func Options(cfg config.LLMConfig) llm.Options {
	return llm.Options{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
}

// IndexOptions returns the indexer options for schemas indexed by the server.
// Table descriptions are only generated when cfg.Describe is set. A nil
// queryCache leaves cache invalidation off.
func IndexOptions(cfg config.IndexConfig, chat llm.Provider, queryCache *cache.QueryCache, logger *slog.Logger) []indexer.Option {
	var opts []indexer.Option
	if cfg.Describe {
		opts = append(opts, indexer.WithDescriber(metadata.NewDescriber(chat, 0, logger)))
	}
	if queryCache != nil {
		opts = append(opts, indexer.WithCacheInvalidator(queryCache))
	}
	return opts
}

// OpenStorage connects to Qdrant and makes sure the collection exists.
func OpenStorage(ctx context.Context, cfg config.QdrantConfig) (*storage.QdrantStorage, error) {
	store, err := storage.NewQdrantStorage(storage.Config{
		Host:       cfg.Host,
		Port:       cfg.Port,
		Collection: cfg.Collection,
		Dimension:  cfg.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	if err := store.EnsureCollection(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}
	return store, nil
}

// OpenCache builds the query cache for cfg. It returns nil when caching is
// disabled. The returned close function is never nil.
func OpenCache(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (*cache.QueryCache, func() error, error) {
	noop := func() error { return nil }
	if !cfg.Enabled {
		return nil, noop, nil
	}

	switch cfg.Backend {
	case config.CacheBackendMemory:
		return cache.NewQueryCache(cache.NewMemoryStore(time.Now), cfg.TTL, logger), noop, nil

	case config.CacheBackendSQLite:
		db, err := cache.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		store := cache.NewSQLiteStore(db, time.Now)
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, noop, err
		}
		return cache.NewQueryCache(store, cfg.TTL, logger), store.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// CheckDimension warns when the configured vector size does not match what the
// provider's default embedding model produces.
func CheckDimension(cfg *config.Config, logger *slog.Logger) {
	if cfg.LLM.Provider == config.ProviderGemini &&
		cfg.LLM.GeminiEmbeddingModel == embedding.DefaultGeminiModel &&
		cfg.Qdrant.Dimension != 768 {
		logger.Warn("Vector dimension does not match the Gemini embedding model",
			"model", cfg.LLM.GeminiEmbeddingModel,
			"dimension", cfg.Qdrant.Dimension,
			"expected", 768,
		)
	}
}
