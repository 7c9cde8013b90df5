package domain

import "context"

// Completer is the LLM completion contract. Implementations map provider
// failures to ErrProvider; retry policy belongs to the caller.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, messages []Message, opts CompletionOptions) (Completion, error)
}

// Role identifies the author of a chat message.
type Role string

// Chat message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message passed to the completion provider.
type Message struct {
	Role    Role
	Content string
}

// CompletionOptions tunes a single completion call.
type CompletionOptions struct {
	Temperature float32
	MaxTokens   int
}

// Completion is the provider's answer plus its token accounting.
type Completion struct {
	Text       string
	TokenUsage TokenUsage
}

// TokenUsage is the provider-reported token consumption of one call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
