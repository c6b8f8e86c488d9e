package query

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/supportbot/internal/domain"
)

// MaxLength is the maximum accepted query length in bytes.
const MaxLength = 4096

// Bundle is a query text with its optional precomputed embedding.
type Bundle struct {
	text      string
	embedding []float32
}

// New validates query text. Embedding may be nil; it is computed lazily.
func New(text string, embedding []float32) (Bundle, error) {
	if strings.TrimSpace(text) == "" {
		return Bundle{}, fmt.Errorf("%w: query is required", domain.ErrInvalidQuery)
	}
	if len(text) > MaxLength {
		return Bundle{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidQuery, MaxLength)
	}
	return Bundle{text: text, embedding: embedding}, nil
}

// Text returns the query text.
func (b Bundle) Text() string { return b.text }

// Embedding returns the query vector, nil when not yet embedded.
func (b Bundle) Embedding() []float32 { return b.embedding }

// HasEmbedding reports whether the bundle carries a vector.
func (b Bundle) HasEmbedding() bool { return len(b.embedding) > 0 }

// WithEmbedding returns a copy carrying the given vector.
func (b Bundle) WithEmbedding(vec []float32) Bundle {
	return Bundle{text: b.text, embedding: vec}
}
