package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/options"
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/query"
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/result"
	"github.com/kailas-cloud/supportbot/internal/logger"
	"github.com/kailas-cloud/supportbot/internal/metrics"
	"github.com/kailas-cloud/supportbot/internal/usecase/postprocess"
	"github.com/kailas-cloud/supportbot/internal/usecase/retrieval"
)

// Passage is one retrieved documentation passage.
type Passage struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

// Engine composes hybrid retrievers, fusion and post-processing into one call.
// Safe for concurrent use; holds no per-call state.
type Engine struct {
	cfg    Config
	embed  retrieval.Embedder
	fusion retrieval.Retriever
	chain  *postprocess.Chain
}

// New validates cfg, verifies every index exists and wires the pipeline.
func New(ctx context.Context, cfg Config, deps Deps) (*Engine, error) {
	cfg.Timeouts = cfg.Timeouts.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("%w: index store is required", domain.ErrInvalidConfig)
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", domain.ErrInvalidConfig)
	}
	if cfg.NumQueries > 1 && deps.Rewriter == nil {
		return nil, fmt.Errorf("%w: num_queries > 1 requires a query rewriter", domain.ErrInvalidConfig)
	}

	for _, idx := range cfg.Indices {
		ok, err := deps.Store.IndexExists(ctx, idx)
		if err != nil {
			return nil, fmt.Errorf("check index %q: %w", idx, err)
		}
		if !ok {
			return nil, domain.NewIndexNotFound(idx)
		}
	}

	registry := postprocess.NewRegistry(cfg.FallbackLanguage, deps.Reranker, postprocess.RerankConfig{
		EnglishModel:      cfg.RerankModels.English,
		MultilingualModel: cfg.RerankModels.Multilingual,
		Timeout:           cfg.Timeouts.Rerank,
	})
	chain, err := postprocess.Build(cfg.PostProcessors, registry)
	if err != nil {
		return nil, err //nolint:wrapcheck // already carries ErrInvalidConfig
	}

	hybrids := make([]retrieval.Retriever, len(cfg.Indices))
	for i, idx := range cfg.Indices {
		hybrids[i] = retrieval.NewHybrid(idx, deps.Store, deps.Embedder, retrieval.HybridConfig{
			SimilarityTopK: cfg.SimilarityTopK,
			MinSimilarity:  cfg.AvoidQueryMinSimilarity,
		})
	}

	fusion := retrieval.NewFusion(hybrids, deps.Rewriter, deps.Embedder, retrieval.FusionConfig{
		SimilarityTopK: cfg.SimilarityTopK,
		NumQueries:     cfg.NumQueries,
		RRFK:           cfg.RRFK,
		MaxConcurrency: cfg.MaxConcurrency,
		SearchTimeout:  cfg.Timeouts.Search,
		RewriteTimeout: cfg.Timeouts.Rewrite,
		EmbedTimeout:   cfg.Timeouts.Embed,
	})

	return &Engine{cfg: cfg, embed: deps.Embedder, fusion: fusion, chain: chain}, nil
}

// Indices returns the configured index ids.
func (e *Engine) Indices() []string {
	return append([]string(nil), e.cfg.Indices...)
}

// PostProcessors returns the configured stage names in order.
func (e *Engine) PostProcessors() []string { return e.chain.Names() }

// Retrieve returns at most TopK passages supporting the query, best first.
// An empty result is not an error.
func (e *Engine) Retrieve(ctx context.Context, text string, req options.Request) ([]Passage, error) {
	start := time.Now()
	retrievalID := uuid.NewString()
	ctx = logger.With(ctx, zap.String("retrieval_id", retrievalID))
	log := logger.FromContext(ctx)

	passages, err := e.retrieve(ctx, text, req)

	status := "ok"
	if err != nil {
		status = "error"
		log.Error("Retrieve failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
	} else {
		metrics.RetrieveResults.Observe(float64(len(passages)))
		log.Info("Retrieve completed",
			zap.Int("results", len(passages)),
			zap.Bool("avoid_query", req.AvoidQuery),
			zap.Duration("duration", time.Since(start)),
		)
	}
	metrics.RetrieveDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	return passages, err
}

func (e *Engine) retrieve(ctx context.Context, text string, req options.Request) ([]Passage, error) {
	opts, err := options.Resolve(req, options.Defaults{TopK: e.cfg.TopK, Language: e.cfg.Language})
	if err != nil {
		return nil, fmt.Errorf("resolve options: %w", err)
	}
	q, err := query.New(text, nil)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	vec, err := e.embedQuery(ctx, q.Text())
	if err != nil {
		return nil, err
	}

	fused, err := e.fusion.Retrieve(ctx, q.WithEmbedding(vec), retrieval.Params{AvoidQuery: opts.AvoidQuery()})
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	out := e.chain.Apply(ctx, fused, postprocess.NewContext(q.Text(), opts))
	out = result.Truncate(result.Dedup(out), opts.TopK())

	return toPassages(out), nil
}

func (e *Engine) embedQuery(ctx context.Context, text string) ([]float32, error) {
	ectx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Embed)
	defer cancel()

	res, err := e.embed.Embed(ectx, text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("embed query: %w", ctxErr)
		}
		if errors.Is(err, domain.ErrEmbeddingProviderError) {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		return nil, fmt.Errorf("embed query: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	if len(res.Embedding) == 0 {
		return nil, fmt.Errorf("embed query: %w: empty embedding", domain.ErrEmbeddingProviderError)
	}
	return res.Embedding, nil
}

func toPassages(list []result.Scored) []Passage {
	out := make([]Passage, len(list))
	for i, s := range list {
		n := s.Node()
		out[i] = Passage{Text: n.Text(), Metadata: n.Metadata(), Score: s.Score()}
	}
	return out
}
