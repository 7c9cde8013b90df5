package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Request is one inbound customer message to answer.
type Request struct {
	ConversationID string `json:"conversation_id"`
	AssistantID    string `json:"assistant_id"`
	BusinessID     string `json:"business_id"`
	Message        string `json:"message"`
	CustomerName   string `json:"customer_name,omitempty"`
}

// Validate checks the request against the configured message limit.
func (r *Request) Validate(maxMessageLength int) error {
	if r.Message == "" {
		return fmt.Errorf("message is required: %w", ErrValidation)
	}
	if len(r.Message) > maxMessageLength {
		return fmt.Errorf("message exceeds %d characters: %w", maxMessageLength, ErrValidation)
	}
	if r.ConversationID == "" {
		return fmt.Errorf("conversation_id is required: %w", ErrValidation)
	}
	if r.AssistantID == "" {
		return fmt.Errorf("assistant_id is required: %w", ErrValidation)
	}
	if r.BusinessID == "" {
		return fmt.Errorf("business_id is required: %w", ErrValidation)
	}
	return nil
}

// Fingerprint identifies duplicate in-flight work: same conversation, same
// message text. Lifetime is the duration of one pipeline execution.
type Fingerprint string

// NewFingerprint derives the dedup key from conversation ID and a stable
// hash of the message text.
func NewFingerprint(conversationID, message string) Fingerprint {
	h := sha256.Sum256([]byte(message))
	return Fingerprint(conversationID + ":" + hex.EncodeToString(h[:8]))
}

// Response is the user-visible answer after quality control.
type Response struct {
	Text           string  `json:"text"`
	Confidence     float64 `json:"confidence"`
	ShouldEscalate bool    `json:"should_escalate"`
}

// ResultError is the structured error carried in a failed result envelope.
type ResultError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ResultMetadata describes how the result was produced.
type ResultMetadata struct {
	Fingerprint  Fingerprint   `json:"fingerprint"`
	Deduplicated bool          `json:"deduplicated"`
	Duration     time.Duration `json:"duration_ns"`
	TokenUsage   TokenUsage    `json:"token_usage"`
	ContextScore float64       `json:"context_score"`
}

// Result is the uniform envelope for both success and failure: callers never
// distinguish exception paths from normal control flow.
type Result struct {
	Success      bool           `json:"success"`
	Response     *Response      `json:"response,omitempty"`
	Error        *ResultError   `json:"error,omitempty"`
	FallbackUsed bool           `json:"fallback_used"`
	Metadata     ResultMetadata `json:"metadata"`
}

// FailedResult builds the failure envelope for err, classified into its kind.
func FailedResult(err error, meta ResultMetadata) Result {
	return Result{
		Success:      false,
		Error:        &ResultError{Kind: Classify(err), Message: err.Error()},
		FallbackUsed: true,
		Metadata:     meta,
	}
}
