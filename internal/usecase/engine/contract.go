package engine

import (
	"context"

	"github.com/kailas-cloud/supportbot/internal/usecase/postprocess"
	"github.com/kailas-cloud/supportbot/internal/usecase/retrieval"
)

// IndexStore is the index backend with an existence probe for startup checks.
type IndexStore interface {
	retrieval.IndexStore
	IndexExists(ctx context.Context, index string) (bool, error)
}

// Deps are the engine collaborators. Rewriter and Reranker are optional.
type Deps struct {
	Store    IndexStore
	Embedder retrieval.Embedder
	Rewriter retrieval.Rewriter
	Reranker postprocess.Reranker
}
