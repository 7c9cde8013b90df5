package domain

import "time"

// QueryType classifies a user message for pruning and strategy decisions.
type QueryType string

// Query types recognized by the analyzer.
const (
	QueryQuestion  QueryType = "question"
	QueryCommand   QueryType = "command"
	QueryStatement QueryType = "statement"
)

// ConversationTurn is one user/system exchange. Immutable once created;
// windows only ever append turns.
type ConversationTurn struct {
	ID                  string    `json:"id"`
	Timestamp           time.Time `json:"timestamp"`
	UserText            string    `json:"user_text"`
	SystemText          string    `json:"system_text"`
	ExtractedTerms      []string  `json:"extracted_terms,omitempty"`
	QueryType           QueryType `json:"query_type"`
	Confidence          float64   `json:"confidence"`
	RelevantDocumentIDs []string  `json:"relevant_document_ids,omitempty"`
	Embedding           []float32 `json:"embedding,omitempty"`
}

// Important reports whether the turn must survive pruning ahead of recency:
// high-confidence turns and commands carry durable intent.
func (t *ConversationTurn) Important() bool {
	return t.Confidence > 0.8 || t.QueryType == QueryCommand
}

// TokenEstimate approximates the turn's token cost with the fixed
// 4-characters-per-token heuristic over user and system text.
func (t *ConversationTurn) TokenEstimate() int {
	return (len(t.UserText) + len(t.SystemText)) / 4
}
