package openai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/metrics"
	"github.com/kailas-cloud/supportbot/internal/resilience"
)

const (
	opRewrite = "rewrite"

	// DefaultRewriteModel is the chat model used to generate query variants.
	DefaultRewriteModel = "gpt-4o-mini"

	rewritePrompt = "You are a helpful assistant that generates multiple search queries based on a " +
		"single input query. Generate %d search queries, one on each line, related to the following " +
		"input query:\nQuery: %s\nQueries:\n"
)

// listMarker matches "1.", "2)", "-", "*" style prefixes models put in front of each line.
var listMarker = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s*`)

// RewriterConfig configures the chat-completion query rewriter.
type RewriterConfig struct {
	Config
	Temperature float32
}

// Rewriter generates alternative phrasings of a query with a chat model.
type Rewriter struct {
	client      *openai.Client
	model       string
	temperature float32
	executor    *resilience.Executor
	logger      *zap.Logger
}

// NewRewriter creates a query rewriter.
func NewRewriter(cfg *RewriterConfig) *Rewriter {
	model := cfg.Model
	if model == "" {
		model = DefaultRewriteModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rewriter{
		client:      newClient(&cfg.Config),
		model:       model,
		temperature: cfg.Temperature,
		executor:    cfg.Executor,
		logger:      logger,
	}
}

// Rewrite returns up to n distinct rewrites of query, excluding the query itself.
func (r *Rewriter) Rewrite(ctx context.Context, query string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	req := openai.ChatCompletionRequest{
		Model:       r.model,
		Temperature: r.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(rewritePrompt, n, query)},
		},
	}

	start := time.Now()
	var resp openai.ChatCompletionResponse
	err := r.executor.Execute(ctx, opRewrite, func(ctx context.Context) error {
		var callErr error
		resp, callErr = r.client.CreateChatCompletion(ctx, req)
		return callErr //nolint:wrapcheck // classified by status
	}, classify)

	if err != nil {
		metrics.RewriteRequests.WithLabelValues(r.model, "error").Inc()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("rewrite request: %w", err)
		}
		return nil, parseAPIError("rewrite", err, domain.ErrRewriteUnavailable)
	}
	if len(resp.Choices) == 0 {
		metrics.RewriteRequests.WithLabelValues(r.model, "error").Inc()
		return nil, fmt.Errorf("empty rewrite response: %w", domain.ErrRewriteUnavailable)
	}
	metrics.RewriteRequests.WithLabelValues(r.model, "success").Inc()

	out := parseRewrites(resp.Choices[0].Message.Content, query, n)
	r.logger.Debug("Query rewritten",
		zap.String("model", r.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("requested", n),
		zap.Int("returned", len(out)),
	)
	return out, nil
}

// parseRewrites splits a model reply into at most n distinct queries.
func parseRewrites(content, original string, n int) []string {
	seen := map[string]struct{}{strings.ToLower(strings.TrimSpace(original)): {}}
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = listMarker.ReplaceAllString(line, "")
		line = strings.Trim(strings.TrimSpace(line), `"'`)
		if line == "" {
			continue
		}
		key := strings.ToLower(line)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}
