package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/domain/passage"
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/query"
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/result"
	"github.com/kailas-cloud/supportbot/internal/logger"
)

// HybridConfig configures a single-index hybrid retriever.
type HybridConfig struct {
	// SimilarityTopK caps both the dense and the sparse candidate lists.
	SimilarityTopK int
	// MinSimilarity is the dense similarity floor applied in avoid-query mode.
	MinSimilarity float64
}

// Hybrid runs dense and sparse search over one index and merges them by rank.
type Hybrid struct {
	index string
	store IndexStore
	embed Embedder
	cfg   HybridConfig
}

// NewHybrid creates a hybrid retriever bound to one index.
// embed may be nil when every bundle arrives pre-embedded.
func NewHybrid(index string, store IndexStore, embed Embedder, cfg HybridConfig) *Hybrid {
	if cfg.SimilarityTopK <= 0 {
		cfg.SimilarityTopK = domain.DefaultSimilarityTopK
	}
	return &Hybrid{index: index, store: store, embed: embed, cfg: cfg}
}

// Index returns the bound index id.
func (h *Hybrid) Index() string { return h.index }

// Retrieve runs both strategies concurrently and merges them.
func (h *Hybrid) Retrieve(ctx context.Context, q query.Bundle, p Params) ([]result.Scored, error) {
	var dense, sparse []passage.Hit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := h.vector(gctx, q)
		if err != nil {
			return err
		}
		hits, err := h.store.DenseSearch(gctx, h.index, vec, h.cfg.SimilarityTopK)
		if err != nil {
			return storeErr("dense search", h.index, err)
		}
		dense = hits
		return nil
	})
	g.Go(func() error {
		hits, err := h.store.SparseSearch(gctx, h.index, q.Text(), h.cfg.SimilarityTopK)
		if err != nil {
			return storeErr("sparse search", h.index, err)
		}
		sparse = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck // already wrapped with index context
	}

	if p.AvoidQuery && h.cfg.MinSimilarity > 0 {
		dense, sparse = applyFloor(dense, sparse, h.cfg.MinSimilarity)
	}

	merged := mergeByRank(dense, sparse)
	if len(merged) == 0 {
		return []result.Scored{}, nil
	}

	ids := make([]string, len(merged))
	for i, m := range merged {
		ids[i] = m.NodeID
	}
	nodes, err := h.store.GetNodes(ctx, h.index, ids)
	if err != nil {
		return nil, storeErr("get nodes", h.index, err)
	}
	byID := make(map[string]passage.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID()] = n
	}

	out := make([]result.Scored, 0, len(merged))
	for _, m := range merged {
		n, ok := byID[m.NodeID]
		if !ok {
			continue
		}
		out = append(out, result.New(n, m.Score))
	}

	logger.FromContext(ctx).Debug("Hybrid search completed",
		zap.String("index", h.index),
		zap.Int("dense", len(dense)),
		zap.Int("sparse", len(sparse)),
		zap.Int("merged", len(out)),
	)
	return out, nil
}

func (h *Hybrid) vector(ctx context.Context, q query.Bundle) ([]float32, error) {
	if q.HasEmbedding() {
		return q.Embedding(), nil
	}
	if h.embed == nil {
		return nil, fmt.Errorf("%w: query has no embedding and no embedder is configured",
			domain.ErrEmbeddingProviderError)
	}
	res, err := h.embed.Embed(ctx, q.Text())
	if err != nil {
		return nil, embedErr(err)
	}
	return res.Embedding, nil
}

// applyFloor drops dense hits under the floor and every sparse hit without a surviving dense twin.
func applyFloor(dense, sparse []passage.Hit, floor float64) ([]passage.Hit, []passage.Hit) {
	keptDense := make([]passage.Hit, 0, len(dense))
	ok := make(map[string]struct{}, len(dense))
	for _, d := range dense {
		if d.Score < floor {
			continue
		}
		keptDense = append(keptDense, d)
		ok[d.NodeID] = struct{}{}
	}
	keptSparse := make([]passage.Hit, 0, len(sparse))
	for _, s := range sparse {
		if _, found := ok[s.NodeID]; found {
			keptSparse = append(keptSparse, s)
		}
	}
	return keptDense, keptSparse
}

// mergeByRank scores each hit 1/(rank+1) within its list and keeps the best score per node.
// Ties keep first-seen order, dense before sparse.
func mergeByRank(dense, sparse []passage.Hit) []passage.Hit {
	type entry struct {
		hit   passage.Hit
		order int
	}
	merged := make(map[string]*entry, len(dense)+len(sparse))
	order := 0
	add := func(list []passage.Hit) {
		for rank, h := range list {
			s := 1.0 / float64(rank+1)
			if e, ok := merged[h.NodeID]; ok {
				if s > e.hit.Score {
					e.hit.Score = s
				}
				continue
			}
			merged[h.NodeID] = &entry{hit: passage.Hit{NodeID: h.NodeID, Score: s}, order: order}
			order++
		}
	}
	add(dense)
	add(sparse)

	entries := make([]*entry, 0, len(merged))
	for _, e := range merged {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].hit.Score != entries[j].hit.Score {
			return entries[i].hit.Score > entries[j].hit.Score
		}
		return entries[i].order < entries[j].order
	})

	out := make([]passage.Hit, len(entries))
	for i, e := range entries {
		out[i] = e.hit
	}
	return out
}

func storeErr(op, index string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, domain.ErrIndexUnavailable) {
		return fmt.Errorf("%s %q: %w", op, index, err)
	}
	return fmt.Errorf("%s %q: %w: %w", op, index, domain.ErrIndexUnavailable, err)
}

func embedErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, domain.ErrEmbeddingProviderError) {
		return fmt.Errorf("embed query: %w", err)
	}
	return fmt.Errorf("embed query: %w: %w", domain.ErrEmbeddingProviderError, err)
}
