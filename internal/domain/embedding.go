package domain

import (
	"context"
	"fmt"
)

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single API call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the
// decorator chain. Cached marks vectors served without a provider call.
type EmbeddingResult struct {
	Vector       []float32
	Cached       bool
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries per-item outcomes and aggregate token usage.
// A failed item has a nil Vector and a recorded error; the batch as a whole
// succeeds as long as the slice lengths match the input.
type BatchEmbeddingResult struct {
	Vectors      [][]float32
	Errors       []error
	PromptTokens int
	TotalTokens  int
}

// Failed reports how many items in the batch did not produce a vector.
func (r BatchEmbeddingResult) Failed() int {
	n := 0
	for _, err := range r.Errors {
		if err != nil {
			n++
		}
	}
	return n
}

// BatchFallback calls Embed one-by-one, accumulating partial successes
// instead of failing the whole batch. Safety net for providers without a
// native batch endpoint and for recovering from a failed batch call.
func BatchFallback(ctx context.Context, e Embedder, texts []string) BatchEmbeddingResult {
	result := BatchEmbeddingResult{
		Vectors: make([][]float32, len(texts)),
		Errors:  make([]error, len(texts)),
	}

	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			result.Errors[i] = fmt.Errorf("fallback embed [%d]: %w", i, err)
			continue
		}
		result.Vectors[i] = res.Vector
		result.PromptTokens += res.PromptTokens
		result.TotalTokens += res.TotalTokens
	}

	return result
}
