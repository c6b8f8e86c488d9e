package retrieval

import (
	"context"

	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/domain/passage"
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/query"
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/result"
)

// IndexStore is the read-only contract of a pre-built index set.
// Dense hits carry cosine similarity in [0, 1]; sparse hits carry BM25 scores.
type IndexStore interface {
	DenseSearch(ctx context.Context, index string, vector []float32, k int) ([]passage.Hit, error)
	SparseSearch(ctx context.Context, index, text string, k int) ([]passage.Hit, error)
	// GetNodes loads node bodies in one round trip. Unknown ids are omitted.
	GetNodes(ctx context.Context, index string, ids []string) ([]passage.Node, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Rewriter produces alternative phrasings of a query.
type Rewriter interface {
	Rewrite(ctx context.Context, query string, n int) ([]string, error)
}

// Params are the per-call knobs threaded through every retriever.
type Params struct {
	// AvoidQuery suppresses weakly related passages instead of filling top-k.
	AvoidQuery bool
}

// Retriever returns a ranked, de-duplicated list for a query.
type Retriever interface {
	Retrieve(ctx context.Context, q query.Bundle, p Params) ([]result.Scored, error)
}
