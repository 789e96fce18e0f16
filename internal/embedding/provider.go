// Package embedding converts text into vectors for schema retrieval.
package embedding

import "context"

// Provider converts text to fixed-length vectors.
// Implementations must return the same vector for identical input.
type Provider interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
