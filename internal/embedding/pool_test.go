package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lengthProvider embeds a text as a one-element vector holding its length.
type lengthProvider struct {
	delay   time.Duration
	err     error
	active  atomic.Int32
	maxSeen atomic.Int32
	calls   atomic.Int32
}

func (p *lengthProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (p *lengthProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.calls.Add(1)
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		seen := p.maxSeen.Load()
		if n <= seen || p.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func TestWorkerPool_Embed(t *testing.T) {
	pool := NewWorkerPool(&lengthProvider{}, 2)
	defer pool.Close()

	vec, err := pool.Embed(context.Background(), "abcd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4}, vec)

	vecs, err := pool.EmbedBatch(context.Background(), []string{"a", "abc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {3}}, vecs)
}

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	provider := &lengthProvider{delay: 20 * time.Millisecond}
	pool := NewWorkerPool(provider, 3)
	defer pool.Close()

	var wg sync.WaitGroup
	for range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Embed(context.Background(), "question")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(12), provider.calls.Load())
	assert.LessOrEqual(t, provider.maxSeen.Load(), int32(3))
}

func TestWorkerPool_PropagatesErrors(t *testing.T) {
	boom := errors.New("provider down")
	pool := NewWorkerPool(&lengthProvider{err: boom}, 1)
	defer pool.Close()

	_, err := pool.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestWorkerPool_ContextCancelled(t *testing.T) {
	pool := NewWorkerPool(&lengthProvider{delay: time.Second}, 1)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := pool.Embed(ctx, "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkerPool_Closed(t *testing.T) {
	pool := NewWorkerPool(&lengthProvider{}, 1)
	pool.Close()
	pool.Close()

	_, err := pool.Embed(context.Background(), "late")
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestToFloat32(t *testing.T) {
	assert.Equal(t, []float32{0.5, -1}, toFloat32([]float64{0.5, -1}))
}
