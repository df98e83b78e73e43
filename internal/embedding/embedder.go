// Package embedding turns text into fixed-length vectors via a remote provider, with caching and a test double.
package embedding

import "context"

// Embedder produces vector embeddings for text.
// All vectors from one Embedder share a length determined by its model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Model identifies the embedding model; it is recorded in the vector file.
	Model() string
	Close() error
}
