package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals bad input; never retried, surfaced immediately.
	ErrValidation = errors.New("validation failed")
	// ErrTimeout signals that the pipeline exceeded its deadline.
	ErrTimeout = errors.New("pipeline timeout")
	// ErrProvider signals an embedding or completion provider failure (retryable).
	ErrProvider = errors.New("provider error")
	// ErrGeneration signals that the completion provider stayed unavailable
	// after all retry attempts.
	ErrGeneration = errors.New("generation failed")
	// ErrDimensionMismatch signals that two vectors of unequal length were compared.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidEmbedding signals that a provider returned a vector whose
	// dimensionality differs from the configured model dimension. Fatal,
	// never cached.
	ErrInvalidEmbedding = errors.New("invalid embedding")
	// ErrPersistence signals a best-effort persistence failure; logged, never
	// fails an otherwise-successful response.
	ErrPersistence = errors.New("persistence failed")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
)

// DimensionMismatchError wraps ErrDimensionMismatch with both lengths.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: want %d, got %d", ErrDimensionMismatch.Error(), e.Want, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// NewDimensionMismatch creates a dimension mismatch error.
func NewDimensionMismatch(want, got int) error {
	return &DimensionMismatchError{Want: want, Got: got}
}

// InvalidEmbeddingError wraps ErrInvalidEmbedding with the offending dimensions.
type InvalidEmbeddingError struct {
	Want int
	Got  int
}

func (e *InvalidEmbeddingError) Error() string {
	return fmt.Sprintf("%s: configured dimension %d, provider returned %d", ErrInvalidEmbedding.Error(), e.Want, e.Got)
}

func (e *InvalidEmbeddingError) Unwrap() error { return ErrInvalidEmbedding }

// NewInvalidEmbedding creates an invalid embedding error.
func NewInvalidEmbedding(want, got int) error {
	return &InvalidEmbeddingError{Want: want, Got: got}
}

// Retryable reports whether an error is worth retrying against the provider.
// Validation and data-integrity faults fail fast; only provider errors retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrProvider)
}

// ErrorKind is the machine-readable error class carried in the result envelope.
type ErrorKind string

// Error kinds surfaced to callers.
const (
	KindValidation  ErrorKind = "validation_error"
	KindTimeout     ErrorKind = "timeout_error"
	KindProvider    ErrorKind = "provider_error"
	KindGeneration  ErrorKind = "generation_error"
	KindDimension   ErrorKind = "dimension_mismatch_error"
	KindEmbedding   ErrorKind = "invalid_embedding_error"
	KindPersistence ErrorKind = "persistence_error"
	KindInternal    ErrorKind = "internal_error"
)

// Classify maps an error chain onto its ErrorKind.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrDimensionMismatch):
		return KindDimension
	case errors.Is(err, ErrInvalidEmbedding):
		return KindEmbedding
	case errors.Is(err, ErrGeneration):
		return KindGeneration
	case errors.Is(err, ErrProvider):
		return KindProvider
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	default:
		return KindInternal
	}
}
