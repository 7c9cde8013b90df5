package contextd

import "github.com/meridian-cloud/contextd/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrValidation        = domain.ErrValidation
	ErrTimeout           = domain.ErrTimeout
	ErrProvider          = domain.ErrProvider
	ErrGeneration        = domain.ErrGeneration
	ErrDimensionMismatch = domain.ErrDimensionMismatch
	ErrInvalidEmbedding  = domain.ErrInvalidEmbedding
	ErrPersistence       = domain.ErrPersistence
	ErrNotFound          = domain.ErrNotFound
)
