package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/metrics"
)

// InstrumentedEmbedder wraps Embedder with dimension checks and logging.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
// Indices are built with a fixed vector size; a query vector of another size can never match.
type InstrumentedEmbedder struct {
	inner      domain.Embedder
	provider   string
	model      string
	dimensions int
	logger     *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder. dimensions <= 0 disables the size check.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	dimensions int, logger *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:      inner,
		provider:   provider,
		model:      model,
		dimensions: dimensions,
		logger:     logger,
	}
}

// Embed delegates to the inner embedder and validates the returned vector.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	start := time.Now()

	result, err := p.inner.Embed(ctx, text)

	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	if len(result.Embedding) == 0 {
		metrics.EmbeddingErrorsTotal.WithLabelValues(p.provider, p.model, "empty_vector").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("%w: empty embedding", domain.ErrEmbeddingProviderError)
	}
	if p.dimensions > 0 && len(result.Embedding) != p.dimensions {
		metrics.EmbeddingErrorsTotal.WithLabelValues(p.provider, p.model, "dimension_mismatch").Inc()
		p.logger.Error("Embedding dimension mismatch",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Int("expected", p.dimensions),
			zap.Int("got", len(result.Embedding)),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("%w: got %d dimensions, want %d",
			domain.ErrEmbeddingProviderError, len(result.Embedding), p.dimensions)
	}

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}
