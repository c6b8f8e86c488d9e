package index

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/supportbot/internal/db"
	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/domain/passage"
	"github.com/kailas-cloud/supportbot/internal/logger"
	"github.com/kailas-cloud/supportbot/internal/metrics"
)

// Hash fields written by the ingestion pipeline.
// The FT index is expected to declare __content as TEXT and __vector AS vector (FLOAT32, COSINE).
const (
	fieldContent     = "__content"
	fieldVector      = "__vector"
	fieldVectorScore = "__vector_score"
	fieldMetadata    = "__metadata"
)

const (
	backend     = "redis"
	indexSuffix = ":idx"
)

// store is the consumer interface for index reads (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	IndexExists(ctx context.Context, name string) (bool, error)
	ListIndexes(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// Repo reads pre-built indices from Redis: <prefix><index>:idx over hashes <prefix><index>:<node id>.
type Repo struct {
	store  store
	prefix string
}

// New creates an index repository scoped to prefix (domain.DefaultKeyPrefix when empty).
func New(s store, prefix string) *Repo {
	if prefix == "" {
		prefix = domain.DefaultKeyPrefix
	}
	return &Repo{store: s, prefix: prefix}
}

func (r *Repo) indexName(index string) string {
	return fmt.Sprintf("%s%s%s", r.prefix, index, indexSuffix)
}

func (r *Repo) nodePrefix(index string) string {
	return fmt.Sprintf("%s%s:", r.prefix, index)
}

// DenseSearch returns the k nearest nodes by cosine similarity.
func (r *Repo) DenseSearch(ctx context.Context, index string, vector []float32, k int) ([]passage.Hit, error) {
	start := time.Now()
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(index),
		Vector:       vector,
		K:            k,
		ReturnFields: []string{fieldVectorScore},
	})
	metrics.IndexSearchDuration.WithLabelValues(backend, "dense").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", index, err)
	}
	return r.toHits(sr, index), nil
}

// SparseSearch returns the k best BM25 matches for the text. Any query term may match.
func (r *Repo) SparseSearch(ctx context.Context, index, text string, k int) ([]passage.Hit, error) {
	start := time.Now()
	sr, err := r.store.SearchBM25(ctx, &db.TextQuery{
		IndexName: r.indexName(index),
		Query:     text,
		TopK:      k,
		MatchAny:  true,
		NoContent: true,
	})
	metrics.IndexSearchDuration.WithLabelValues(backend, "sparse").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("search bm25 %s: %w", index, err)
	}
	return r.toHits(sr, index), nil
}

// GetNodes loads node hashes in one pipelined round trip. Missing keys are skipped.
func (r *Repo) GetNodes(ctx context.Context, index string, ids []string) ([]passage.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	prefix := r.nodePrefix(index)
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = prefix + id
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("get nodes %s: %w", index, err)
	}

	nodes := make([]passage.Node, 0, len(hashes))
	for i, fields := range hashes {
		if len(fields) == 0 {
			continue
		}
		nodes = append(nodes, parseNode(ctx, ids[i], index, fields))
	}
	return nodes, nil
}

// IndexExists reports whether the FT index for the given index id exists.
func (r *Repo) IndexExists(ctx context.Context, index string) (bool, error) {
	ok, err := r.store.IndexExists(ctx, r.indexName(index))
	if err != nil {
		return false, fmt.Errorf("index exists %s: %w", index, err)
	}
	return ok, nil
}

// ListIndices returns the index ids that have an FT index under this repo's prefix.
func (r *Repo) ListIndices(ctx context.Context) ([]string, error) {
	names, err := r.store.ListIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !strings.HasPrefix(n, r.prefix) || !strings.HasSuffix(n, indexSuffix) {
			continue
		}
		if id := strings.TrimSuffix(strings.TrimPrefix(n, r.prefix), indexSuffix); id != "" {
			out = append(out, id)
		}
	}
	return out, nil
}

// Ping checks store connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	return r.store.Ping(ctx) //nolint:wrapcheck // transparent proxy
}

func (r *Repo) toHits(sr *db.SearchResult, index string) []passage.Hit {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}
	prefix := r.nodePrefix(index)
	hits := make([]passage.Hit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		hits = append(hits, passage.Hit{
			NodeID: strings.TrimPrefix(e.Key, prefix),
			Score:  e.Score,
		})
	}
	return hits
}

// parseNode builds a node from flat hash fields.
// __metadata holds JSON metadata; other non-reserved fields are merged in when absent there.
// A malformed __metadata is logged and skipped; the node then carries only its flat fields.
func parseNode(ctx context.Context, id, index string, fields map[string]string) passage.Node {
	var text string
	meta := make(map[string]any)

	if raw, ok := fields[fieldMetadata]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			logger.FromContext(ctx).Warn("Malformed node metadata",
				zap.String("index", index),
				zap.String("node_id", id),
				zap.Error(err),
			)
			meta = make(map[string]any)
		}
	}

	for k, v := range fields {
		switch k {
		case fieldContent:
			text = v
		case fieldVector, fieldVectorScore, fieldMetadata:
			// reserved
		default:
			if _, exists := meta[k]; exists {
				continue
			}
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				meta[k] = f
			} else {
				meta[k] = v
			}
		}
	}

	return passage.Reconstruct(id, index, text, meta)
}
