package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := openai.NewClient(
		option.WithAPIKey("sk-test"),
		option.WithBaseURL(srv.URL+"/v1/"),
		option.WithMaxRetries(0),
	)
	return &client
}

func TestOpenAIProvider_Complete(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "`+"```sql\\nSELECT 1\\n```"+`"}}]
		}`)
	})

	p := NewOpenAIProvider(client, "")
	out, err := p.Complete(context.Background(), []Message{
		System("schema here"),
		User("how many users?"),
	}, Options{Temperature: 0, MaxTokens: 2000})
	require.NoError(t, err)
	assert.Equal(t, "```sql\nSELECT 1\n```", out)

	assert.Equal(t, DefaultOpenAIModel, body["model"])
	assert.EqualValues(t, 2000, body["max_tokens"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	assert.Equal(t, "how many users?", msgs[1].(map[string]any)["content"])
}

func TestOpenAIProvider_Error(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error": {"message": "bad request", "type": "invalid_request_error"}}`)
	})

	_, err := NewOpenAIProvider(client, "gpt-4o-mini").Complete(context.Background(), []Message{User("q")}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat completion failed")
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "x", "object": "chat.completion", "created": 1, "model": "m", "choices": []}`)
	})

	_, err := NewOpenAIProvider(client, "").Complete(context.Background(), []Message{User("q")}, Options{})
	assert.ErrorContains(t, err, "no choices")
}
