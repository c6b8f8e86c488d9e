package postprocess

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/result"
	"github.com/kailas-cloud/supportbot/internal/logger"
	"github.com/kailas-cloud/supportbot/internal/metrics"
)

// Rerank model defaults.
const (
	DefaultEnglishModel      = "rerank-english-v2.0"
	DefaultMultilingualModel = "rerank-multilingual-v2.0"
	DefaultRerankTimeout     = 10 * time.Second
)

// RerankConfig selects models per language and bounds the provider call.
type RerankConfig struct {
	EnglishModel      string
	MultilingualModel string
	Timeout           time.Duration
}

// RerankStage reorders candidates by cross-encoder relevance.
// Provider failures pass the input through truncated to TopK.
type RerankStage struct {
	reranker Reranker
	cfg      RerankConfig
}

// NewRerank creates a rerank stage.
func NewRerank(reranker Reranker, cfg RerankConfig) *RerankStage {
	if cfg.EnglishModel == "" {
		cfg.EnglishModel = DefaultEnglishModel
	}
	if cfg.MultilingualModel == "" {
		cfg.MultilingualModel = DefaultMultilingualModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRerankTimeout
	}
	return &RerankStage{reranker: reranker, cfg: cfg}
}

// Name implements Stage.
func (*RerankStage) Name() string { return StageRerank }

// Model returns the model used for the language.
func (r *RerankStage) Model(language string) string {
	if language == "en" {
		return r.cfg.EnglishModel
	}
	return r.cfg.MultilingualModel
}

// Apply implements Stage.
func (r *RerankStage) Apply(ctx context.Context, in []result.Scored, pc Context) []result.Scored {
	if len(in) == 0 {
		return in
	}

	docs := make([]string, len(in))
	for i, s := range in {
		docs[i] = s.Node().Text()
	}

	rctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	model := r.Model(pc.Language)
	hits, err := r.reranker.Rerank(rctx, pc.Query, docs, model, pc.TopK)
	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		r.degrade(ctx, model, reason, err)
		return result.Truncate(in, pc.TopK)
	}

	hits = append(hits[:0:0], hits...)
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	out := make([]result.Scored, 0, len(hits))
	used := make(map[int]struct{}, len(hits))
	for _, h := range hits {
		if h.Index < 0 || h.Index >= len(in) {
			continue
		}
		if _, dup := used[h.Index]; dup {
			continue
		}
		used[h.Index] = struct{}{}
		out = append(out, in[h.Index].WithScore(h.Score))
	}
	if len(out) == 0 {
		r.degrade(ctx, model, "empty", nil)
		return result.Truncate(in, pc.TopK)
	}

	metrics.RerankRequests.WithLabelValues(model, "ok").Inc()
	return result.Truncate(out, pc.TopK)
}

func (r *RerankStage) degrade(ctx context.Context, model, reason string, err error) {
	metrics.RerankRequests.WithLabelValues(model, reason).Inc()
	metrics.StageDegradations.WithLabelValues(StageRerank, reason).Inc()
	fields := []zap.Field{zap.String("model", model), zap.String("reason", reason)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.FromContext(ctx).Warn("Rerank unavailable, passing candidates through", fields...)
}
