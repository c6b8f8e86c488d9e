package embcache

import (
	"context"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/supportbot/internal/domain"
)

const layerLRU = "lru"

// DefaultLRUSize is the number of query embeddings kept in process.
const DefaultLRUSize = 1000

// LRUEmbedder keeps recent query embeddings in process memory.
// Sits in front of CachedEmbedder so repeated queries skip the network entirely.
type LRUEmbedder struct {
	inner      domain.Embedder
	cache      *lru.Cache[string, []float32]
	cacheTotal *prometheus.CounterVec
}

// NewLRU creates an in-process caching decorator holding up to size entries.
func NewLRU(inner domain.Embedder, size int, cacheTotal *prometheus.CounterVec) (*LRUEmbedder, error) {
	if size <= 0 {
		size = DefaultLRUSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &LRUEmbedder{inner: inner, cache: cache, cacheTotal: cacheTotal}, nil
}

// Embed returns the cached vector or delegates to the inner embedder.
// The returned slice is a copy; callers may modify it.
func (c *LRUEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := hashText(text)
	if vec, ok := c.cache.Get(key); ok {
		c.incCache("hit")
		return domain.EmbeddingResult{Embedding: slices.Clone(vec)}, nil
	}
	c.incCache("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	if len(result.Embedding) > 0 {
		c.cache.Add(key, slices.Clone(result.Embedding))
	}
	return result, nil
}

// Len returns the number of cached entries.
func (c *LRUEmbedder) Len() int { return c.cache.Len() }

// HealthCheck forwards to the inner embedder when it supports health checks.
func (c *LRUEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

func (c *LRUEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(layerLRU, result).Inc()
	}
}
