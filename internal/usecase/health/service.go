package health

import (
	"context"
	"time"

	"github.com/kailas-cloud/supportbot/internal/logger"
	"go.uber.org/zap"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the embedding provider is failing; cached queries may still succeed.
	Degraded Status = "degraded"
	// Unhealthy indicates the index store is unreachable and no retrieval can succeed.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names reported in Report.Checks.
const (
	ComponentIndexStore = "index_store"
	ComponentEmbedding  = "embedding"
)

// DefaultCheckTimeout bounds each component check.
const DefaultCheckTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store     StorePinger
	embedding EmbeddingChecker
	timeout   time.Duration
}

// New creates a Service. embedding can be nil.
func New(store StorePinger, embedding EmbeddingChecker) *Service {
	return &Service{store: store, embedding: embedding, timeout: DefaultCheckTimeout}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if err := s.run(ctx, s.store.Ping); err != nil {
		logger.FromContext(ctx).Warn("Index store health check failed", zap.Error(err))
		checks[ComponentIndexStore] = CheckError
		status = Unhealthy
	} else {
		checks[ComponentIndexStore] = CheckOK
	}

	if s.embedding != nil {
		if err := s.run(ctx, s.embedding.HealthCheck); err != nil {
			logger.FromContext(ctx).Warn("Embedding health check failed", zap.Error(err))
			checks[ComponentEmbedding] = CheckError
			if status == Healthy {
				status = Degraded
			}
		} else {
			checks[ComponentEmbedding] = CheckOK
		}
	}

	return Report{Status: status, Checks: checks}
}

func (s *Service) run(ctx context.Context, check func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return check(cctx)
}
