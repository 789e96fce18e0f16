package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPoolClosed is returned for work submitted after Close.
var ErrPoolClosed = errors.New("embedding worker pool closed")

// WorkerPool runs embedding calls on a fixed set of worker goroutines so
// request handlers never compute embeddings themselves and concurrency
// against the provider stays bounded.
type WorkerPool struct {
	provider Provider
	jobs     chan job
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

var _ Provider = (*WorkerPool)(nil)

type job struct {
	ctx    context.Context
	texts  []string
	result chan<- jobResult
}

type jobResult struct {
	vectors [][]float32
	err     error
}

// NewWorkerPool starts workers goroutines in front of provider.
func NewWorkerPool(provider Provider, workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	p := &WorkerPool{
		provider: provider,
		jobs:     make(chan job),
		done:     make(chan struct{}),
	}
	for range workers {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Embed returns the embedding of a single text.
func (p *WorkerPool) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}
	return vectors[0], nil
}

// EmbedBatch hands texts to a free worker and waits for the result or ctx cancellation.
func (p *WorkerPool) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make(chan jobResult, 1)

	select {
	case p.jobs <- job{ctx: ctx, texts: texts, result: result}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrPoolClosed
	}

	select {
	case r := <-result:
		return r.vectors, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the workers after in-flight jobs finish.
func (p *WorkerPool) Close() {
	p.once.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case j := <-p.jobs:
			if err := j.ctx.Err(); err != nil {
				j.result <- jobResult{err: err}
				continue
			}
			vectors, err := p.provider.EmbedBatch(j.ctx, j.texts)
			j.result <- jobResult{vectors: vectors, err: err}
		case <-p.done:
			return
		}
	}
}
