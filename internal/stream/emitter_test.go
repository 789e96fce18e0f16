package stream

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_SuccessSequence(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf, 0)

	require.NoError(t, e.SQL(SQLPayload{SQLQuery: "SELECT 1", Confidence: 0.9, TablesUsed: []string{"users"}}))
	require.NoError(t, e.Explanation(context.Background(), "Counts  all\nusers"))
	require.NoError(t, e.Done())

	want := "event: sql\ndata: {\"sql_query\":\"SELECT 1\",\"confidence\":0.9,\"tables_used\":[\"users\"]}\n\n" +
		"event: explanation\ndata: {\"chunk\":\"Counts \"}\n\n" +
		"event: explanation\ndata: {\"chunk\":\"all \"}\n\n" +
		"event: explanation\ndata: {\"chunk\":\"users \"}\n\n" +
		"event: done\ndata: {}\n\n"
	assert.Equal(t, want, buf.String())
	assert.True(t, e.Finished())
}

func TestEmitter_SQLWithoutExplanation(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf, 0)

	require.NoError(t, e.SQL(SQLPayload{SQLQuery: "SELECT 1"}))
	require.NoError(t, e.Done())

	assert.Equal(t,
		"event: sql\ndata: {\"sql_query\":\"SELECT 1\",\"confidence\":0,\"tables_used\":[]}\n\nevent: done\ndata: {}\n\n",
		buf.String())
}

func TestEmitter_ErrorIsFollowedByDone(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf, 0)

	require.NoError(t, e.Error("Failed to generate SQL"))
	assert.Equal(t,
		"event: error\ndata: {\"detail\":\"Failed to generate SQL\"}\n\nevent: done\ndata: {}\n\n",
		buf.String())
}

func TestEmitter_NothingAfterDone(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf, 0)
	require.NoError(t, e.Error("boom"))
	written := buf.Len()

	assert.ErrorIs(t, e.SQL(SQLPayload{}), ErrFinished)
	assert.ErrorIs(t, e.Explanation(context.Background(), "more"), ErrFinished)
	assert.ErrorIs(t, e.Error("again"), ErrFinished)
	assert.ErrorIs(t, e.Done(), ErrFinished)
	assert.Equal(t, written, buf.Len())
}

func TestEmitter_OutOfOrder(t *testing.T) {
	e := NewEmitter(&bytes.Buffer{}, 0)

	assert.ErrorIs(t, e.Explanation(context.Background(), "x"), ErrOutOfOrder)
	assert.ErrorIs(t, e.Done(), ErrOutOfOrder)

	require.NoError(t, e.SQL(SQLPayload{SQLQuery: "SELECT 1"}))
	assert.ErrorIs(t, e.SQL(SQLPayload{SQLQuery: "SELECT 2"}), ErrOutOfOrder)
}

func TestEmitter_DelayBetweenChunks(t *testing.T) {
	e := NewEmitter(&bytes.Buffer{}, 10*time.Millisecond)
	require.NoError(t, e.SQL(SQLPayload{}))

	start := time.Now()
	require.NoError(t, e.Explanation(context.Background(), "a b c"))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestEmitter_CancelStopsChunks(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf, time.Hour)
	require.NoError(t, e.SQL(SQLPayload{}))
	before := buf.Len()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := e.Explanation(ctx, "first second third")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, "event: explanation\ndata: {\"chunk\":\"first \"}\n\n", buf.String()[before:])
}

func TestEmitter_FlushesResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	e := NewEmitter(rec, 0)

	require.NoError(t, e.SQL(SQLPayload{SQLQuery: "SELECT 1"}))
	assert.True(t, rec.Flushed)
}
