package coordinator

import (
	"context"

	"github.com/meridian-cloud/contextd/internal/domain"
	"github.com/meridian-cloud/contextd/internal/domain/window"
	"github.com/meridian-cloud/contextd/internal/usecase/aggregator"
)

// ContextProvider assembles the retrieval context for a query.
type ContextProvider interface {
	GetContext(ctx context.Context, query, conversationID, businessID string) (aggregator.AggregatedContext, error)
}

// WindowRepo is the conversation-memory surface the coordinator appends to.
type WindowRepo interface {
	GetOrCreate(ctx context.Context, businessID, conversationID string) *window.Window
	Persist(ctx context.Context, w *window.Window) error
}

// QualityPipeline runs the post-generation checks over a draft.
type QualityPipeline interface {
	Process(draft domain.Response, req domain.Request) domain.Response
}
