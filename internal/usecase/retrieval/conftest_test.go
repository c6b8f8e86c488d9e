package retrieval

import (
	"context"
	"sync"
	"testing"

	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/domain/passage"
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/query"
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/result"
)

// --- Mocks ---

type mockStore struct {
	denseFn  func(ctx context.Context, index string, vector []float32, k int) ([]passage.Hit, error)
	sparseFn func(ctx context.Context, index, text string, k int) ([]passage.Hit, error)
	nodesFn  func(ctx context.Context, index string, ids []string) ([]passage.Node, error)
}

func (m *mockStore) DenseSearch(ctx context.Context, index string, vector []float32, k int) ([]passage.Hit, error) {
	if m.denseFn != nil {
		return m.denseFn(ctx, index, vector, k)
	}
	return nil, nil
}

func (m *mockStore) SparseSearch(ctx context.Context, index, text string, k int) ([]passage.Hit, error) {
	if m.sparseFn != nil {
		return m.sparseFn(ctx, index, text, k)
	}
	return nil, nil
}

func (m *mockStore) GetNodes(ctx context.Context, index string, ids []string) ([]passage.Node, error) {
	if m.nodesFn != nil {
		return m.nodesFn(ctx, index, ids)
	}
	nodes := make([]passage.Node, len(ids))
	for i, id := range ids {
		nodes[i] = passage.Reconstruct(id, index, "text "+id, nil)
	}
	return nodes, nil
}

type mockEmbedder struct {
	mu    sync.Mutex
	calls []string
	fn    func(text string) (domain.EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(text)
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}}, nil
}

type mockRewriter struct {
	fn func(ctx context.Context, q string, n int) ([]string, error)
}

func (m *mockRewriter) Rewrite(ctx context.Context, q string, n int) ([]string, error) {
	return m.fn(ctx, q, n)
}

// stubRetriever returns a fixed list per query text and records params.
type stubRetriever struct {
	mu     sync.Mutex
	lists  map[string][]result.Scored
	err    error
	params []Params
	texts  []string
}

func (s *stubRetriever) Retrieve(_ context.Context, q query.Bundle, p Params) ([]result.Scored, error) {
	s.mu.Lock()
	s.params = append(s.params, p)
	s.texts = append(s.texts, q.Text())
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.lists[q.Text()], nil
}

// --- Helpers ---

func hits(ids ...string) []passage.Hit {
	out := make([]passage.Hit, len(ids))
	for i, id := range ids {
		out[i] = passage.Hit{NodeID: id, Score: 1.0 - float64(i)*0.1}
	}
	return out
}

func scored(index string, ids ...string) []result.Scored {
	out := make([]result.Scored, len(ids))
	for i, id := range ids {
		out[i] = result.New(passage.Reconstruct(id, index, "text "+id, nil), 1.0/float64(i+1))
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

func mustQuery(t *testing.T, text string) query.Bundle {
	t.Helper()
	q, err := query.New(text, nil)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	return q
}
