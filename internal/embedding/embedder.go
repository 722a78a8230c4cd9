// Package embedding provides text embedding providers and caching.
package embedding

import "context"

// Embedder produces vector embeddings for text. Implementations do not retry;
// retry policy belongs to the caller.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
	Close() error
}
