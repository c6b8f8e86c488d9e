package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/domain/passage"
)

// --- Mocks ---

type memIndex struct {
	nodes  map[string]passage.Node
	dense  []passage.Hit
	sparse []passage.Hit
	err    error
}

type memStore struct {
	mu       sync.Mutex
	indices  map[string]*memIndex
	probeErr error
}

func newMemStore() *memStore {
	return &memStore{indices: map[string]*memIndex{}}
}

// add registers a node; similarity < 0 keeps it out of the dense list.
func (s *memStore) add(index, id, text string, meta map[string]any, similarity float64, sparse bool) {
	idx, ok := s.indices[index]
	if !ok {
		idx = &memIndex{nodes: map[string]passage.Node{}}
		s.indices[index] = idx
	}
	idx.nodes[id] = passage.Reconstruct(id, index, text, meta)
	if similarity >= 0 {
		idx.dense = append(idx.dense, passage.Hit{NodeID: id, Score: similarity})
	}
	if sparse {
		idx.sparse = append(idx.sparse, passage.Hit{NodeID: id, Score: 1})
	}
}

func (s *memStore) index(name string) *memIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.indices[name]; ok {
		return idx
	}
	return &memIndex{}
}

func (s *memStore) DenseSearch(_ context.Context, index string, _ []float32, k int) ([]passage.Hit, error) {
	idx := s.index(index)
	if idx.err != nil {
		return nil, idx.err
	}
	return capHits(idx.dense, k), nil
}

func (s *memStore) SparseSearch(_ context.Context, index, _ string, k int) ([]passage.Hit, error) {
	idx := s.index(index)
	if idx.err != nil {
		return nil, idx.err
	}
	return capHits(idx.sparse, k), nil
}

func (s *memStore) GetNodes(_ context.Context, index string, ids []string) ([]passage.Node, error) {
	idx := s.index(index)
	out := make([]passage.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := idx.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *memStore) IndexExists(_ context.Context, index string) (bool, error) {
	if s.probeErr != nil {
		return false, s.probeErr
	}
	_, ok := s.indices[index]
	return ok, nil
}

func capHits(h []passage.Hit, k int) []passage.Hit {
	if len(h) > k {
		return h[:k]
	}
	return h
}

type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}, nil
}

type mockReranker struct {
	err error
}

func (m *mockReranker) Rerank(
	_ context.Context, _ string, docs []string, _ string, topN int,
) ([]domain.RerankHit, error) {
	if m.err != nil {
		return nil, m.err
	}
	// reverse order
	hits := make([]domain.RerankHit, 0, len(docs))
	for i := len(docs) - 1; i >= 0 && len(hits) < topN; i-- {
		hits = append(hits, domain.RerankHit{Index: i, Score: float64(i + 1)})
	}
	return hits, nil
}

// --- Helpers ---

func newTestEngine(t *testing.T, store *memStore, mutate func(*Config, *Deps)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	for name := range store.indices {
		cfg.Indices = append(cfg.Indices, name)
	}
	deps := Deps{Store: store, Embedder: &mockEmbedder{}}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	e, err := New(context.Background(), cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func texts(ps []Passage) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Text
	}
	return out
}
