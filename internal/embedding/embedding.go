// Package embedding provides the text→vector interface consumed by
// the persister, searcher, and clusterer. The embedding model itself
// is out of scope for this core; HashProvider is a deterministic
// stand-in, and OllamaProvider wires a real local model.
package embedding

import (
	"context"
	"fmt"
)

// Provider generates vector embeddings from text.
type Provider interface {
	// Embed generates a single embedding vector from text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector dimensionality.
	Dimensions() int
}

// ErrEmbeddingUnavailable signals a transient or permanent failure to
// produce an embedding.
type ErrEmbeddingUnavailable struct {
	Provider string
	Cause    error
}

func (e *ErrEmbeddingUnavailable) Error() string {
	return fmt.Sprintf("embedding: %s: %v", e.Provider, e.Cause)
}

func (e *ErrEmbeddingUnavailable) Unwrap() error { return e.Cause }
