// Package scoring defines the ephemeral scored results produced per query
// and the source weights used to fuse them.
package scoring

import "github.com/meridian-cloud/contextd/internal/domain"

// SourceType tags where a scored result came from. Conversation, document,
// entity and graph are context sources; keyword is a transient signal tag
// used only while fusing the hybrid search legs.
type SourceType string

// Context source types.
const (
	SourceConversation SourceType = "conversation"
	SourceDocument     SourceType = "document"
	SourceEntity       SourceType = "entity"
	SourceGraph        SourceType = "graph"
	SourceKeyword      SourceType = "keyword"
)

// TurnRef is the payload of a conversation-sourced result.
type TurnRef struct {
	Turn       *domain.ConversationTurn
	Similarity float64
}

// DocumentRef is the payload of a knowledge-document result.
type DocumentRef struct {
	NodeID     string
	EntityType string
	Version    int
}

// EntityRef is the payload of an entity-sourced result.
type EntityRef struct {
	Name     string
	Type     string
	Mentions int
}

// Result is a single scored context candidate. Exactly one payload field is
// set, matching Source; results are ephemeral and never persisted.
type Result struct {
	Source        SourceType
	Content       string
	RawScore      float64
	WeightedScore float64

	Turn     *TurnRef
	Document *DocumentRef
	Entity   *EntityRef
}

// Key identifies the underlying context item for cross-list deduplication:
// the same document reached through the vector and keyword legs fuses into
// one result.
func (r *Result) Key() string {
	switch {
	case r.Turn != nil && r.Turn.Turn != nil:
		return "turn:" + r.Turn.Turn.ID
	case r.Document != nil:
		return "doc:" + r.Document.NodeID
	case r.Entity != nil:
		return "ent:" + r.Entity.Name
	default:
		return string(r.Source) + ":" + r.Content
	}
}

// Weights maps each source type to its fusion weight.
type Weights map[SourceType]float64

// SearchWeights are the defaults for fusing the hybrid search legs: vector
// similarity dominates, keyword match assists, graph proximity breaks ties.
func SearchWeights() Weights {
	return Weights{
		SourceDocument: 0.6, // vector leg
		SourceKeyword:  0.3,
		SourceGraph:    0.1,
	}
}

// ContextWeights are the defaults for the conversation+knowledge
// configuration used by the aggregator.
func ContextWeights() Weights {
	return Weights{
		SourceConversation: 0.6,
		SourceDocument:     0.4,
		SourceEntity:       0.4,
	}
}

// Weight returns the weight for a source, defaulting to 1 when unset so an
// unknown source passes through unscaled rather than vanishing.
func (w Weights) Weight(s SourceType) float64 {
	if v, ok := w[s]; ok {
		return v
	}
	return 1
}
