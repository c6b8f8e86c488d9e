package postprocess

import (
	"context"

	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/options"
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/result"
)

// Stage names. Chains must list them in this relative order.
const (
	StageTags     = "tags"
	StageLanguage = "language"
	StageRerank   = "rerank"
)

// Context carries the per-call inputs every stage may read.
type Context struct {
	Query         string
	TopK          int
	MinResultSize int
	Language      string
	IncludeTags   options.TagSet
	ExcludeTags   options.TagSet
}

// NewContext builds a stage context from resolved options. MinResultSize equals TopK.
func NewContext(queryText string, opts options.Options) Context {
	return Context{
		Query:         queryText,
		TopK:          opts.TopK(),
		MinResultSize: opts.TopK(),
		Language:      opts.Language(),
		IncludeTags:   opts.IncludeTags(),
		ExcludeTags:   opts.ExcludeTags(),
	}
}

// Stage transforms a ranked list. Stages never fail; degradations pass input through.
type Stage interface {
	Name() string
	Apply(ctx context.Context, in []result.Scored, pc Context) []result.Scored
}

// Reranker scores passages against a query with a cross-encoder.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, model string, topN int) ([]domain.RerankHit, error)
}
