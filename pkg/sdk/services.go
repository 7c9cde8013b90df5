package contextd

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-cloud/contextd/internal/domain"
	aggregatoruc "github.com/meridian-cloud/contextd/internal/usecase/aggregator"
)

// Respond runs the full pipeline for one customer message and returns
// the result envelope. Failures are carried inside the envelope; the
// error return of the underlying pipeline never escapes.
func (c *Client) Respond(ctx context.Context, req Request) Result {
	start := time.Now()
	res := c.pipeline.Handle(ctx, domainRequest(req))
	var err error
	if res.Error != nil {
		err = fmt.Errorf("%s: %s", res.Error.Kind, res.Error.Message)
	}
	c.obs.observe("respond", start, err)
	return resultFromDomain(res)
}

// Context assembles the retrieval context for a query without invoking
// the generator.
func (c *Client) Context(ctx context.Context, req Request) (out Context, err error) {
	start := time.Now()
	defer func() { c.obs.observe("context", start, err) }()

	agg, err := c.pipeline.GetMemoryContext(ctx, domainRequest(req))
	if err != nil {
		return Context{}, err
	}
	return contextFromAggregated(agg), nil
}

func domainRequest(req Request) domain.Request {
	return domain.Request{
		ConversationID: req.ConversationID,
		AssistantID:    req.AssistantID,
		BusinessID:     req.BusinessID,
		Message:        req.Message,
		CustomerName:   req.CustomerName,
	}
}

func resultFromDomain(res domain.Result) Result {
	out := Result{
		Success:      res.Success,
		FallbackUsed: res.FallbackUsed,
		Fingerprint:  string(res.Metadata.Fingerprint),
		Deduplicated: res.Metadata.Deduplicated,
		Duration:     res.Metadata.Duration,
		ContextScore: res.Metadata.ContextScore,
		TokenUsage: TokenUsage{
			PromptTokens:     res.Metadata.TokenUsage.PromptTokens,
			CompletionTokens: res.Metadata.TokenUsage.CompletionTokens,
			TotalTokens:      res.Metadata.TokenUsage.TotalTokens,
		},
	}
	if res.Response != nil {
		out.Response = &Response{
			Text:           res.Response.Text,
			Confidence:     res.Response.Confidence,
			ShouldEscalate: res.Response.ShouldEscalate,
		}
	}
	if res.Error != nil {
		out.Error = &ResultError{
			Kind:    string(res.Error.Kind),
			Message: res.Error.Message,
		}
	}
	return out
}

func contextFromAggregated(agg aggregatoruc.AggregatedContext) Context {
	items := make([]ContextItem, 0, len(agg.RelevantContext))
	for _, r := range agg.RelevantContext {
		item := ContextItem{
			Source:  string(r.Source),
			Content: r.Content,
			Score:   r.WeightedScore,
		}
		if r.Document != nil {
			item.NodeID = r.Document.NodeID
		}
		items = append(items, item)
	}
	return Context{
		Query:      agg.Query,
		QueryType:  string(agg.QueryType),
		Strategy:   string(agg.Strategy),
		Terms:      agg.Terms,
		Summary:    agg.Summary,
		Topics:     agg.Topics,
		Entities:   agg.Entities,
		Confidence: agg.Confidence,
		Items:      items,
	}
}
