package contextd

import "time"

// Request is one inbound customer message to answer.
type Request struct {
	ConversationID string
	AssistantID    string
	BusinessID     string
	Message        string
	CustomerName   string
}

// Response is the user-visible answer after quality control.
type Response struct {
	Text           string
	Confidence     float64
	ShouldEscalate bool
}

// ResultError is the structured error carried in a failed result.
type ResultError struct {
	Kind    string
	Message string
}

// TokenUsage is the provider-reported token consumption of one call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Result is the uniform envelope for both success and failure: callers
// never distinguish exception paths from normal control flow.
type Result struct {
	Success      bool
	Response     *Response
	Error        *ResultError
	FallbackUsed bool
	Fingerprint  string
	Deduplicated bool
	Duration     time.Duration
	TokenUsage   TokenUsage
	ContextScore float64
}

// Context is the aggregated retrieval context for a query, the same
// material that feeds the generator during Respond.
type Context struct {
	Query      string
	QueryType  string
	Strategy   string
	Terms      []string
	Summary    string
	Topics     []string
	Entities   []string
	Confidence float64
	Items      []ContextItem
}

// ContextItem is a single scored context candidate.
type ContextItem struct {
	Source  string
	Content string
	Score   float64
	NodeID  string // set for knowledge-document items
}
