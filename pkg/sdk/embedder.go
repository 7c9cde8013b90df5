package contextd

import "context"

// Embedder converts text to vector embeddings. Supply one through
// WithEmbedder to replace the OpenAI provider.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single API call.
// Optional: if the provided Embedder also implements BatchEmbedder,
// knowledge ingestion will use it for significantly better throughput.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate
// token usage. A nil vector with a recorded error marks a failed item.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	Errors       []error
	PromptTokens int
	TotalTokens  int
}
