package aggregator

import (
	"context"

	"github.com/meridian-cloud/contextd/internal/domain"
	"github.com/meridian-cloud/contextd/internal/domain/knowledge"
	"github.com/meridian-cloud/contextd/internal/domain/scoring"
	"github.com/meridian-cloud/contextd/internal/domain/window"
)

// WindowRepo is the conversation-memory contract consumed by the aggregator.
type WindowRepo interface {
	GetOrCreate(ctx context.Context, businessID, conversationID string) *window.Window
	Persist(ctx context.Context, w *window.Window) error
}

// KnowledgeSearcher runs hybrid retrieval over the business knowledge base.
type KnowledgeSearcher interface {
	HybridSearch(ctx context.Context, q knowledge.SearchQuery) ([]scoring.Result, error)
}

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Fuser combines the per-source result lists into one bounded ranking.
type Fuser interface {
	Fuse(weights scoring.Weights, lists ...[]scoring.Result) []scoring.Result
}
