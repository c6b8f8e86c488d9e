package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/query"
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/result"
	"github.com/kailas-cloud/supportbot/internal/logger"
	"github.com/kailas-cloud/supportbot/internal/metrics"
)

// Fusion defaults.
const (
	DefaultMaxConcurrency = 8
	DefaultSearchTimeout  = 5 * time.Second
	DefaultRewriteTimeout = 10 * time.Second
	DefaultEmbedTimeout   = 5 * time.Second
)

// FusionConfig configures the multi-index, multi-query fusion retriever.
type FusionConfig struct {
	SimilarityTopK int
	// NumQueries is the total number of query variants including the original.
	NumQueries     int
	RRFK           int
	MaxConcurrency int
	SearchTimeout  time.Duration
	RewriteTimeout time.Duration
	EmbedTimeout   time.Duration
}

func (c *FusionConfig) applyDefaults() {
	if c.SimilarityTopK <= 0 {
		c.SimilarityTopK = domain.DefaultSimilarityTopK
	}
	if c.NumQueries <= 0 {
		c.NumQueries = 1
	}
	if c.RRFK <= 0 {
		c.RRFK = domain.DefaultRRFK
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = DefaultSearchTimeout
	}
	if c.RewriteTimeout <= 0 {
		c.RewriteTimeout = DefaultRewriteTimeout
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = DefaultEmbedTimeout
	}
}

// Fusion fans a query and its rewrites out over child retrievers and fuses the lists by RRF.
type Fusion struct {
	children []Retriever
	rewriter Rewriter
	embed    Embedder
	cfg      FusionConfig
}

// NewFusion creates a fusion retriever. rewriter and embed may be nil.
func NewFusion(children []Retriever, rewriter Rewriter, embed Embedder, cfg FusionConfig) *Fusion {
	cfg.applyDefaults()
	return &Fusion{children: children, rewriter: rewriter, embed: embed, cfg: cfg}
}

// Retrieve searches every (variant × child) pair concurrently.
// Any search failure cancels the remaining searches and fails the call.
func (f *Fusion) Retrieve(ctx context.Context, q query.Bundle, p Params) ([]result.Scored, error) {
	log := logger.FromContext(ctx)

	variants := f.variants(ctx, q)
	variants = f.embedVariants(ctx, variants)

	lists := make([][]result.Scored, len(variants)*len(f.children))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.MaxConcurrency)
	for vi, v := range variants {
		for ci, child := range f.children {
			slot := vi*len(f.children) + ci
			g.Go(func() error {
				sctx, cancel := context.WithTimeout(gctx, f.cfg.SearchTimeout)
				defer cancel()
				res, err := child.Retrieve(sctx, v, p)
				if err != nil {
					return err
				}
				lists[slot] = res
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fusion search: %w", ctxErr)
		}
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrIndexUnavailable) {
			return nil, fmt.Errorf("fusion search: %w: timeout: %w", domain.ErrIndexUnavailable, err)
		}
		return nil, fmt.Errorf("fusion search: %w", err)
	}

	fused := fuseRRF(lists, f.cfg.RRFK, f.cfg.SimilarityTopK)

	log.Debug("Fusion completed",
		zap.Int("variants", len(variants)),
		zap.Int("indices", len(f.children)),
		zap.Int("fused", len(fused)),
		zap.Bool("avoid_query", p.AvoidQuery),
	)
	return fused, nil
}

// variants returns the original query followed by de-duplicated rewrites.
// Rewrite failures degrade to the original query only.
func (f *Fusion) variants(ctx context.Context, q query.Bundle) []query.Bundle {
	out := []query.Bundle{q}
	if f.cfg.NumQueries <= 1 || f.rewriter == nil {
		return out
	}

	rctx, cancel := context.WithTimeout(ctx, f.cfg.RewriteTimeout)
	defer cancel()

	rewrites, err := f.rewriter.Rewrite(rctx, q.Text(), f.cfg.NumQueries-1)
	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.StageDegradations.WithLabelValues("rewrite", reason).Inc()
		logger.FromContext(ctx).Warn("Query rewrite failed, using original query only",
			zap.String("reason", reason),
			zap.Error(err),
		)
		return out
	}

	seen := map[string]struct{}{normalizeVariant(q.Text()): {}}
	for _, r := range rewrites {
		if len(out) >= f.cfg.NumQueries {
			break
		}
		key := normalizeVariant(r)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		b, err := query.New(strings.TrimSpace(r), nil)
		if err != nil {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, b)
	}
	return out
}

// embedVariants embeds rewritten variants once so each index does not repeat the call.
// A variant whose embedding fails is dropped; the original query is always kept.
func (f *Fusion) embedVariants(ctx context.Context, variants []query.Bundle) []query.Bundle {
	if f.embed == nil || len(variants) <= 1 {
		return variants
	}

	embedded := make([]query.Bundle, len(variants))
	failed := make([]bool, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.MaxConcurrency)
	for i, v := range variants {
		if v.HasEmbedding() {
			embedded[i] = v
			continue
		}
		g.Go(func() error {
			ectx, cancel := context.WithTimeout(gctx, f.cfg.EmbedTimeout)
			defer cancel()
			res, err := f.embed.Embed(ectx, v.Text())
			if err != nil {
				if i > 0 {
					failed[i] = true
					logger.FromContext(ctx).Warn("Dropping query variant: embedding failed",
						zap.String("variant", v.Text()),
						zap.Error(err),
					)
				}
				embedded[i] = v
				return nil
			}
			embedded[i] = v.WithEmbedding(res.Embedding)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]query.Bundle, 0, len(embedded))
	for i, v := range embedded {
		if failed[i] {
			continue
		}
		out = append(out, v)
	}
	return out
}

func normalizeVariant(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
