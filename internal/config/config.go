// Package config loads server and indexer settings from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Prefix is prepended to every environment variable read by Load.
const Prefix = "TEXT2SQL_"

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	CacheBackendMemory = "memory"
	CacheBackendSQLite = "sqlite"
)

// Config represents the application configuration.
type Config struct {
	HTTP      HTTPConfig      `envPrefix:"HTTP_"`
	Qdrant    QdrantConfig    `envPrefix:"QDRANT_"`
	LLM       LLMConfig       `envPrefix:"LLM_"`
	Retrieval RetrievalConfig `envPrefix:"RETRIEVAL_"`
	Cache     CacheConfig     `envPrefix:"CACHE_"`
	Index     IndexConfig     `envPrefix:"INDEX_"`
	Stream    StreamConfig    `envPrefix:"STREAM_"`
	Log       LogConfig       `envPrefix:"LOG_"`
	GitHub    GitHubConfig    `envPrefix:"GITHUB_"`
}

// HTTPConfig controls the API listener.
type HTTPConfig struct {
	Addr            string        `env:"ADDR"             envDefault:":8080"`
	ServerMode      bool          `env:"SERVER_MODE"      envDefault:"true"` // false runs MCP over stdio
	ReadTimeout     time.Duration `env:"READ_TIMEOUT"     envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT"    envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// QdrantConfig points at the vector index.
type QdrantConfig struct {
	Host       string `env:"HOST"       envDefault:"localhost"`
	Port       int    `env:"PORT"       envDefault:"6334"`
	Collection string `env:"COLLECTION" envDefault:"schema_embeddings"`
	Dimension  int    `env:"DIMENSION"  envDefault:"1536"`
}

// LLMConfig selects and configures the embedding and completion providers.
type LLMConfig struct {
	Provider             string  `env:"PROVIDER"               envDefault:"openai"` // openai, gemini
	OpenAIAPIKey         string  `env:"OPENAI_API_KEY"`
	OpenAIBaseURL        string  `env:"OPENAI_BASE_URL"`
	OpenAIChatModel      string  `env:"OPENAI_CHAT_MODEL"      envDefault:"gpt-4o"`
	OpenAIEmbeddingModel string  `env:"OPENAI_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	GeminiAPIKey         string  `env:"GEMINI_API_KEY"`
	GeminiChatModel      string  `env:"GEMINI_CHAT_MODEL"      envDefault:"gemini-1.5-flash"`
	GeminiEmbeddingModel string  `env:"GEMINI_EMBEDDING_MODEL" envDefault:"text-embedding-004"`
	Temperature          float64 `env:"TEMPERATURE"            envDefault:"0"`
	MaxTokens            int     `env:"MAX_TOKENS"             envDefault:"2000"`
}

// RetrievalConfig tunes schema retrieval.
type RetrievalConfig struct {
	TopK              int `env:"TOP_K"               envDefault:"5"`
	EmbedWorkers      int `env:"EMBED_WORKERS"       envDefault:"4"`
	MaxQuestionLength int `env:"MAX_QUESTION_LENGTH" envDefault:"500"`
}

// CacheConfig controls the query cache.
type CacheConfig struct {
	Enabled    bool          `env:"ENABLED"     envDefault:"true"`
	Backend    string        `env:"BACKEND"     envDefault:"memory"` // memory, sqlite
	SQLitePath string        `env:"SQLITE_PATH" envDefault:"text2sql-cache.db"`
	TTL        time.Duration `env:"TTL"         envDefault:"1h"`
}

// IndexConfig controls schemas indexed through the server.
type IndexConfig struct {
	// Describe asks the completion model to write missing table descriptions.
	Describe bool `env:"DESCRIBE" envDefault:"false"`
}

// StreamConfig controls the event stream.
type StreamConfig struct {
	ChunkDelay time.Duration `env:"CHUNK_DELAY" envDefault:"30ms"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string `env:"LEVEL"  envDefault:"info"` // debug, info, warn, error
	Format string `env:"FORMAT" envDefault:"text"` // text, json
}

// GitHubConfig holds credentials for fetching schema files from GitHub.
type GitHubConfig struct {
	Token string `env:"TOKEN"`
}

// Load reads a .env file if present, then the process environment.
func Load() (*Config, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()
	return LoadFrom(environMap(os.Environ()))
}

// LoadFrom parses configuration from the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{
		Prefix:      Prefix,
		Environment: environ,
	}); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	// Unprefixed provider variables are honoured so existing shells keep working.
	fallback(&cfg.LLM.OpenAIAPIKey, environ["OPENAI_API_KEY"])
	fallback(&cfg.LLM.GeminiAPIKey, environ["GEMINI_API_KEY"])
	fallback(&cfg.GitHub.Token, environ["GITHUB_TOKEN"])

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("OpenAI API key is required for provider %q", c.LLM.Provider)
		}
	case ProviderGemini:
		if c.LLM.GeminiAPIKey == "" {
			return fmt.Errorf("Gemini API key is required for provider %q", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unknown LLM provider %q", c.LLM.Provider)
	}

	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendSQLite:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.EmbedWorkers <= 0 {
		return fmt.Errorf("embed workers must be positive, got %d", c.Retrieval.EmbedWorkers)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %s", c.Cache.TTL)
	}
	if c.Qdrant.Dimension <= 0 {
		return fmt.Errorf("vector dimension must be positive, got %d", c.Qdrant.Dimension)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %g", c.LLM.Temperature)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.Log.Level, strings.Join(validLevels, ", "))
	}
	validFormats := []string{"text", "json"}
	if !contains(validFormats, strings.ToLower(c.Log.Format)) {
		return fmt.Errorf("invalid log format: %s (must be one of: %s)", c.Log.Format, strings.Join(validFormats, ", "))
	}

	return nil
}

func fallback(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func environMap(pairs []string) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[key] = value
	}
	return out
}
