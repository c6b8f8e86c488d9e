package cohere

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/resilience"
)

func newTestReranker(t *testing.T, handler http.HandlerFunc, mutate func(*Config)) *Reranker {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := Config{APIKey: "co-key", BaseURL: srv.URL, Logger: zap.NewNop()}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewReranker(cfg)
}

func TestRerank_HappyPath(t *testing.T) {
	r := newTestReranker(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/v1/rerank" {
			t.Errorf("unexpected path: %s", req.URL.Path)
		}
		if req.Header.Get("Authorization") != "Bearer co-key" {
			t.Errorf("unexpected auth header: %s", req.Header.Get("Authorization"))
		}
		var body rerankRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Model != "rerank-english-v2.0" || body.Query != "log images" || body.TopN != 2 || len(body.Documents) != 3 {
			t.Errorf("unexpected request: %+v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id": "abc",
			"results": []map[string]any{
				{"index": 2, "relevance_score": 0.91},
				{"index": 0, "relevance_score": 0.40},
			},
		})
	}, nil)

	hits, err := r.Rerank(context.Background(), "log images", []string{"a", "b", "c"}, "rerank-english-v2.0", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []domain.RerankHit{{Index: 2, Score: 0.91}, {Index: 0, Score: 0.40}}
	if len(hits) != len(want) || hits[0] != want[0] || hits[1] != want[1] {
		t.Errorf("hits = %+v, want %+v", hits, want)
	}
}

func TestRerank_NoDocuments(t *testing.T) {
	r := newTestReranker(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("server must not be called")
	}, nil)

	hits, err := r.Rerank(context.Background(), "q", nil, "m", 5)
	if err != nil || hits != nil {
		t.Fatalf("hits=%v err=%v", hits, err)
	}
}

func TestRerank_StatusError(t *testing.T) {
	r := newTestReranker(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid api token"}`))
	}, nil)

	_, err := r.Rerank(context.Background(), "q", []string{"a"}, "m", 1)
	if !errors.Is(err, domain.ErrRerankUnavailable) {
		t.Fatalf("expected ErrRerankUnavailable, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode() != http.StatusUnauthorized {
		t.Fatalf("expected StatusError 401, got %v", err)
	}
}

func TestRerank_IndexOutOfRange(t *testing.T) {
	r := newTestReranker(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"index": 7, "relevance_score": 0.5}},
		})
	}, nil)

	_, err := r.Rerank(context.Background(), "q", []string{"a"}, "m", 1)
	if !errors.Is(err, domain.ErrRerankUnavailable) {
		t.Fatalf("expected ErrRerankUnavailable, got %v", err)
	}
}

func TestRerank_RetriesTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	r := newTestReranker(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"index": 0, "relevance_score": 0.5}},
		})
	}, func(c *Config) {
		c.Executor = resilience.NewExecutor(resilience.Config{
			RetryMaxAttempts:    2,
			RetryInitialBackoff: time.Millisecond,
			RetryMaxBackoff:     time.Millisecond,
		}, zap.NewNop())
	})

	hits, err := r.Rerank(context.Background(), "q", []string{"a"}, "m", 1)
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if calls.Load() != 2 || len(hits) != 1 {
		t.Fatalf("calls=%d hits=%v", calls.Load(), hits)
	}
}

func TestRerank_ContextCancelled(t *testing.T) {
	r := newTestReranker(t, func(w http.ResponseWriter, req *http.Request) {
		_, _ = io.ReadAll(req.Body)
		<-req.Context().Done()
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Rerank(ctx, "q", []string{"a"}, "m", 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRerank_RateLimiterHonoursContext(t *testing.T) {
	r := newTestReranker(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}, func(c *Config) {
		c.RequestsPerSecond = 0.001
		c.Burst = 1
	})

	if _, err := r.Rerank(context.Background(), "q", []string{"a"}, "m", 1); err != nil {
		t.Fatalf("first call should use the burst token: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Rerank(ctx, "q", []string{"a"}, "m", 1)
	if err == nil {
		t.Fatal("expected limiter wait to fail")
	}
}
