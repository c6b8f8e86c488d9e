package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig signals a configuration error detected at construction time.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrIndexNotFound signals a configured index that the store does not have.
	ErrIndexNotFound = errors.New("index not found")
	// ErrInvalidQuery signals a malformed per-call request (empty query, negative top_k).
	ErrInvalidQuery = errors.New("invalid query")

	// ErrIndexUnavailable signals an index store failure (unreachable, timeout, bad reply).
	ErrIndexUnavailable = errors.New("index store unavailable")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")

	// ErrRerankUnavailable signals a re-ranking provider failure. Never surfaced to callers.
	ErrRerankUnavailable = errors.New("rerank provider unavailable")
	// ErrRewriteUnavailable signals a query-rewrite provider failure. Never surfaced to callers.
	ErrRewriteUnavailable = errors.New("query rewrite unavailable")
)

// IndexNotFoundError names the missing index and unwraps to ErrIndexNotFound.
type IndexNotFoundError struct {
	Index string
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("%s: %q", ErrIndexNotFound.Error(), e.Index)
}

func (e *IndexNotFoundError) Unwrap() error { return ErrIndexNotFound }

// NewIndexNotFound creates an index-not-found error for the given index id.
func NewIndexNotFound(index string) error {
	return &IndexNotFoundError{Index: index}
}
