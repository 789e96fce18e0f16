package observability

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/text2sql-server/internal/config"
)

func TestLoggingMiddlewareLogsStatusAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LogConfig{Level: "info", Format: "json"}, &buf)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware(logger))
	r.Get("/x", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	out := buf.String()
	assert.Contains(t, out, `"msg":"http_request"`)
	assert.Contains(t, out, `"status":202`)
	assert.Contains(t, out, `"request_id":`)
	assert.Contains(t, out, `"service":"text2sql"`)
}

func TestStatusRecorderForwardsFlush(t *testing.T) {
	rr := httptest.NewRecorder()
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok, "recorder must implement http.Flusher")
		_, _ = io.WriteString(w, "event: done\n\n")
		f.Flush()
	}))

	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stream", nil))
	assert.True(t, rr.Flushed)
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LogConfig{Level: "warn", Format: "text"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLoggerNilWriter(t *testing.T) {
	logger := NewLogger(config.LogConfig{Level: "debug"}, nil)
	assert.NotPanics(t, func() { logger.Debug("discarded", slog.Int("n", 1)) })
}
