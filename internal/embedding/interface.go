package embedding

import "context"

// Embedding is the contract every embedding backend implements. The retrieval
// core depends only on this interface; concrete backends are selected by
// configuration at construction time.
type Embedding interface {
	// Embed generates the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for a batch of texts, preserving
	// input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
