package supportbot

import "github.com/kailas-cloud/supportbot/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidConfig          = domain.ErrInvalidConfig
	ErrInvalidQuery           = domain.ErrInvalidQuery
	ErrIndexNotFound          = domain.ErrIndexNotFound
	ErrIndexUnavailable       = domain.ErrIndexUnavailable
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
)
