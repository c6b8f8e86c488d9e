package artifact

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/coder/hnsw"

	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/domain/passage"
	"github.com/kailas-cloud/supportbot/internal/metrics"
)

const (
	backend = "artifact"

	textField = "text"

	// HNSW parameters, coder/hnsw recommendations.
	graphM        = 16
	graphEfSearch = 20

	maxLineSize = 16 << 20
)

// record is one line of <index>.jsonl.
type record struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"embedding"`
}

// bleveDoc is the document shape indexed for BM25.
type bleveDoc struct {
	Text string `json:"text"`
}

// index is one loaded index: nodes, a BM25 text index and a dense graph.
// It is never written after loadIndex returns, so searches take no lock.
type index struct {
	nodes map[string]passage.Node
	text  bleve.Index
	graph *hnsw.Graph[string]
	dims  int
}

// Store serves retrieval from an in-process copy of a pre-built artifact.
// It is read-only after Load.
type Store struct {
	manifest *Manifest
	indices  map[string]*index
	closed   bool
	mu       sync.RWMutex
}

// Load reads the manifest and every listed index from dir.
// Node ids must be unique across the whole artifact: fusion merges hits from all indices by id.
func Load(ctx context.Context, dir string) (*Store, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	s := &Store{manifest: m, indices: make(map[string]*index, len(m.Indices))}
	owner := make(map[string]string)
	for _, id := range m.Indices {
		if err := ctx.Err(); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("load artifact: %w", err)
		}
		idx, err := loadIndex(filepath.Join(dir, id+".jsonl"), id, m.Embedding.Dimensions)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("load index %s: %w", id, err)
		}
		for nodeID := range idx.nodes {
			if prev, dup := owner[nodeID]; dup {
				_ = idx.text.Close()
				_ = s.Close()
				return nil, fmt.Errorf("load index %s: node id %q already used by index %s", id, nodeID, prev)
			}
			owner[nodeID] = id
		}
		s.indices[id] = idx
	}
	return s, nil
}

func loadIndex(path, id string, dims int) (*index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	text, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create text index: %w", err)
	}

	graph := hnsw.NewGraph[string]()
	graph.Distance = hnsw.CosineDistance
	graph.M = graphM
	graph.EfSearch = graphEfSearch

	idx := &index{
		nodes: make(map[string]passage.Node),
		text:  text,
		graph: graph,
		dims:  dims,
	}

	batch := text.NewBatch()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			_ = text.Close()
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		node, err := passage.New(rec.ID, id, rec.Text, rec.Metadata)
		if err != nil {
			_ = text.Close()
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if _, dup := idx.nodes[rec.ID]; dup {
			_ = text.Close()
			return nil, fmt.Errorf("line %d: duplicate node id %q", line, rec.ID)
		}
		idx.nodes[rec.ID] = node

		if err := batch.Index(rec.ID, bleveDoc{Text: rec.Text}); err != nil {
			_ = text.Close()
			return nil, fmt.Errorf("line %d: index text: %w", line, err)
		}

		if len(rec.Embedding) == 0 {
			continue
		}
		if idx.dims == 0 {
			idx.dims = len(rec.Embedding)
		}
		if len(rec.Embedding) != idx.dims {
			_ = text.Close()
			return nil, fmt.Errorf("line %d: embedding has %d dimensions, want %d", line, len(rec.Embedding), idx.dims)
		}
		graph.Add(hnsw.MakeNode(rec.ID, rec.Embedding))
	}
	if err := sc.Err(); err != nil {
		_ = text.Close()
		return nil, fmt.Errorf("scan: %w", err)
	}
	if err := text.Batch(batch); err != nil {
		_ = text.Close()
		return nil, fmt.Errorf("index text batch: %w", err)
	}
	return idx, nil
}

// Manifest returns the loaded artifact manifest.
func (s *Store) Manifest() Manifest {
	m := *s.manifest
	m.Indices = append([]string(nil), s.manifest.Indices...)
	return m
}

// Indices returns the index ids listed by the artifact, in manifest order.
func (s *Store) Indices() []string {
	return append([]string(nil), s.manifest.Indices...)
}

func (s *Store) lookup(id string) (*index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.New("artifact store is closed")
	}
	idx, ok := s.indices[id]
	if !ok {
		return nil, domain.NewIndexNotFound(id)
	}
	return idx, nil
}

// DenseSearch returns the k nearest nodes by cosine similarity, scored 1 - distance.
func (s *Store) DenseSearch(ctx context.Context, indexID string, vector []float32, k int) ([]passage.Hit, error) {
	start := time.Now()
	defer func() {
		metrics.IndexSearchDuration.WithLabelValues(backend, "dense").Observe(time.Since(start).Seconds())
	}()

	idx, err := s.lookup(indexID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("dense search %s: %w", indexID, err)
	}
	if k <= 0 {
		return nil, nil
	}

	if idx.graph.Len() == 0 {
		return nil, nil
	}
	if len(vector) != idx.dims {
		return nil, fmt.Errorf("dense search %s: query has %d dimensions, want %d", indexID, len(vector), idx.dims)
	}

	nodes := idx.graph.Search(vector, k)
	hits := make([]passage.Hit, 0, len(nodes))
	for _, n := range nodes {
		score := 1 - float64(idx.graph.Distance(vector, n.Value))
		if score < 0 {
			score = 0
		}
		hits = append(hits, passage.Hit{NodeID: n.Key, Score: score})
	}
	return hits, nil
}

// SparseSearch returns the k best BM25 matches. Any analyzed query term may match.
func (s *Store) SparseSearch(ctx context.Context, indexID, text string, k int) ([]passage.Hit, error) {
	start := time.Now()
	defer func() {
		metrics.IndexSearchDuration.WithLabelValues(backend, "sparse").Observe(time.Since(start).Seconds())
	}()

	idx, err := s.lookup(indexID)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	q := bleve.NewMatchQuery(text)
	q.SetField(textField)
	req := bleve.NewSearchRequest(q)
	req.Size = k

	res, err := idx.text.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("sparse search %s: %w", indexID, err)
	}

	hits := make([]passage.Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, passage.Hit{NodeID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// GetNodes returns the nodes for ids in request order. Unknown ids are skipped.
func (s *Store) GetNodes(_ context.Context, indexID string, ids []string) ([]passage.Node, error) {
	idx, err := s.lookup(indexID)
	if err != nil {
		return nil, err
	}
	out := make([]passage.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := idx.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// IndexExists reports whether the artifact contains the index.
func (s *Store) IndexExists(_ context.Context, indexID string) (bool, error) {
	_, err := s.lookup(indexID)
	if errors.Is(err, domain.ErrIndexNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Ping succeeds while the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("artifact store is closed")
	}
	return nil
}

// Close releases the text indices.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for id, idx := range s.indices {
		if err := idx.text.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
