package supportbot

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/supportbot/internal/domain"
)

// Embedder converts query text to a vector embedding.
// It must use the model the indices were built with.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Rewriter produces up to n alternative phrasings of a query.
type Rewriter interface {
	Rewrite(ctx context.Context, query string, n int) ([]string, error)
}

// Reranker scores documents against a query and returns the best topN, best first.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, model string, topN int) ([]RerankHit, error)
}

// RerankHit is one re-ranked document: its position in the input and its relevance.
type RerankHit struct {
	Index int
	Score float64
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// rerankerAdapter wraps public Reranker to satisfy the post-processor contract.
type rerankerAdapter struct {
	inner Reranker
}

func (a *rerankerAdapter) Rerank(
	ctx context.Context, query string, documents []string, model string, topN int,
) ([]domain.RerankHit, error) {
	hits, err := a.inner.Rerank(ctx, query, documents, model, topN)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	out := make([]domain.RerankHit, len(hits))
	for i, h := range hits {
		out[i] = domain.RerankHit{Index: h.Index, Score: h.Score}
	}
	return out, nil
}
