package postprocess

import (
	"context"

	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/domain/passage"
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/options"
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/result"
)

type mockReranker struct {
	fn        func(ctx context.Context, query string, docs []string, model string, topN int) ([]domain.RerankHit, error)
	lastModel string
	lastTopN  int
	calls     int
}

func (m *mockReranker) Rerank(
	ctx context.Context, query string, docs []string, model string, topN int,
) ([]domain.RerankHit, error) {
	m.calls++
	m.lastModel = model
	m.lastTopN = topN
	return m.fn(ctx, query, docs, model, topN)
}

type doc struct {
	id   string
	lang string
	tags []string
}

func candidates(docs ...doc) []result.Scored {
	out := make([]result.Scored, len(docs))
	for i, d := range docs {
		meta := map[string]any{}
		if d.lang != "" {
			meta["language"] = d.lang
		}
		if d.tags != nil {
			meta["tags"] = d.tags
		}
		n := passage.Reconstruct(d.id, "docs", "text of "+d.id, meta)
		out[i] = result.New(n, 1.0/float64(i+1))
	}
	return out
}

func ids(list []result.Scored) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID()
	}
	return out
}

func stageCtx(topK int, lang string, include, exclude []string) Context {
	return Context{
		Query:         "how do I paginate results?",
		TopK:          topK,
		MinResultSize: topK,
		Language:      lang,
		IncludeTags:   options.NewTagSet(include...),
		ExcludeTags:   options.NewTagSet(exclude...),
	}
}
