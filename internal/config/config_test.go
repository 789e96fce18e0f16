package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"TEXT2SQL_LLM_OPENAI_API_KEY": "sk-test",
	})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.True(t, cfg.HTTP.ServerMode)
	assert.Equal(t, "localhost", cfg.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, "schema_embeddings", cfg.Qdrant.Collection)
	assert.Equal(t, 1536, cfg.Qdrant.Dimension)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, 0.0, cfg.LLM.Temperature)
	assert.Equal(t, 2000, cfg.LLM.MaxTokens)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 500, cfg.Retrieval.MaxQuestionLength)
	assert.Equal(t, CacheBackendMemory, cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.False(t, cfg.Index.Describe)
	assert.Equal(t, 30*time.Millisecond, cfg.Stream.ChunkDelay)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"TEXT2SQL_LLM_PROVIDER":       "gemini",
		"TEXT2SQL_LLM_GEMINI_API_KEY": "g-key",
		"TEXT2SQL_QDRANT_DIMENSION":   "768",
		"TEXT2SQL_CACHE_BACKEND":      "sqlite",
		"TEXT2SQL_CACHE_TTL":          "5m",
		"TEXT2SQL_RETRIEVAL_TOP_K":    "8",
		"TEXT2SQL_LOG_FORMAT":         "json",
		"TEXT2SQL_STREAM_CHUNK_DELAY": "0s",
		"TEXT2SQL_INDEX_DESCRIBE":     "true",
	})
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "g-key", cfg.LLM.GeminiAPIKey)
	assert.Equal(t, 768, cfg.Qdrant.Dimension)
	assert.Equal(t, CacheBackendSQLite, cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, time.Duration(0), cfg.Stream.ChunkDelay)
	assert.True(t, cfg.Index.Describe)
}

func TestLoadFrom_UnprefixedFallbacks(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"OPENAI_API_KEY": "sk-plain",
		"GITHUB_TOKEN":   "ghp_token",
	})
	require.NoError(t, err)

	assert.Equal(t, "sk-plain", cfg.LLM.OpenAIAPIKey)
	assert.Equal(t, "ghp_token", cfg.GitHub.Token)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		wantErr string
	}{
		{
			name:    "missing api key",
			environ: map[string]string{},
			wantErr: "OpenAI API key is required",
		},
		{
			name: "unknown provider",
			environ: map[string]string{
				"TEXT2SQL_LLM_PROVIDER": "llama",
			},
			wantErr: "unknown LLM provider",
		},
		{
			name: "unknown cache backend",
			environ: map[string]string{
				"OPENAI_API_KEY":         "sk",
				"TEXT2SQL_CACHE_BACKEND": "redis",
			},
			wantErr: "unknown cache backend",
		},
		{
			name: "zero top k",
			environ: map[string]string{
				"OPENAI_API_KEY":           "sk",
				"TEXT2SQL_RETRIEVAL_TOP_K": "0",
			},
			wantErr: "top_k must be positive",
		},
		{
			name: "bad log level",
			environ: map[string]string{
				"OPENAI_API_KEY":     "sk",
				"TEXT2SQL_LOG_LEVEL": "verbose",
			},
			wantErr: "invalid log level",
		},
		{
			name: "malformed duration",
			environ: map[string]string{
				"OPENAI_API_KEY":     "sk",
				"TEXT2SQL_CACHE_TTL": "soon",
			},
			wantErr: "failed to parse environment variables",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.environ)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvironMap(t *testing.T) {
	m := environMap([]string{"A=1", "B=x=y", "broken"})
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y"}, m)
}
