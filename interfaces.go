package kessa

import "context"

// EmbeddingProvider generates vector embeddings from text.
// When supplied via WithEmbeddingProvider, it replaces the
// auto-detected hash/Ollama provider picked from Config.
// Implementations need only satisfy this interface — the
// adapter in New() wraps it for internal use.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
