package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/resilience"
)

const (
	// DefaultBaseURL is the public Cohere API.
	DefaultBaseURL = "https://api.cohere.ai"

	opRerank = "rerank"

	maxErrorBody = 4096
)

// Config holds the re-rank provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	// RequestsPerSecond limits outgoing calls client-side; <= 0 disables the limiter.
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Executor          *resilience.Executor
	Logger            *zap.Logger
}

// StatusError is a non-2xx reply from the re-rank API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("rerank API status %d", e.Code)
	}
	return fmt.Sprintf("rerank API status %d: %s", e.Code, e.Body)
}

// StatusCode returns the HTTP status.
func (e *StatusError) StatusCode() int { return e.Code }

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	ID      string         `json:"id"`
	Results []rerankResult `json:"results"`
}

// Reranker calls the Cohere /v1/rerank endpoint.
type Reranker struct {
	endpoint string
	apiKey   string
	client   *http.Client
	limiter  *rate.Limiter
	executor *resilience.Executor
	logger   *zap.Logger
}

// NewReranker creates a Cohere re-rank client.
func NewReranker(cfg Config) *Reranker {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Reranker{
		endpoint: base + "/v1/rerank",
		apiKey:   cfg.APIKey,
		client:   client,
		executor: cfg.Executor,
		logger:   logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return r
}

// Rerank scores documents against query and returns up to topN hits, best first.
// Failures wrap domain.ErrRerankUnavailable; context errors are returned as is.
func (r *Reranker) Rerank(
	ctx context.Context, query string, documents []string, model string, topN int,
) ([]domain.RerankHit, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{
		Model:     model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	var resp rerankResponse
	err = r.executor.Execute(ctx, opRerank, func(ctx context.Context) error {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
		}
		var callErr error
		resp, callErr = r.do(ctx, body)
		return callErr
	}, resilience.ClassifyHTTP)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("rerank: %w: %w", domain.ErrRerankUnavailable, err)
	}

	hits := make([]domain.RerankHit, 0, len(resp.Results))
	for _, res := range resp.Results {
		if res.Index < 0 || res.Index >= len(documents) {
			return nil, fmt.Errorf("%w: result index %d out of range [0,%d)",
				domain.ErrRerankUnavailable, res.Index, len(documents))
		}
		hits = append(hits, domain.RerankHit{Index: res.Index, Score: res.RelevanceScore})
	}

	r.logger.Debug("Rerank completed",
		zap.String("model", model),
		zap.Int("documents", len(documents)),
		zap.Int("results", len(hits)),
	)
	return hits, nil
}

func (r *Reranker) do(ctx context.Context, body []byte) (rerankResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return rerankResponse{}, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return rerankResponse{}, fmt.Errorf("rerank request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return rerankResponse{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return rerankResponse{}, fmt.Errorf("decode rerank response: %w", err)
	}
	return out, nil
}
