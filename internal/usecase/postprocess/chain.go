package postprocess

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/result"
	"github.com/kailas-cloud/supportbot/internal/logger"
)

var stageOrder = map[string]int{
	StageTags:     0,
	StageLanguage: 1,
	StageRerank:   2,
}

// Chain applies stages in a fixed order.
type Chain struct {
	stages []Stage
}

// NewChain validates that stages are a subsequence of tags → language → rerank.
func NewChain(stages ...Stage) (*Chain, error) {
	last := -1
	seen := make(map[string]struct{}, len(stages))
	for _, s := range stages {
		pos, ok := stageOrder[s.Name()]
		if !ok {
			return nil, fmt.Errorf("%w: unknown post-processor %q", domain.ErrInvalidConfig, s.Name())
		}
		if _, dup := seen[s.Name()]; dup {
			return nil, fmt.Errorf("%w: post-processor %q listed twice", domain.ErrInvalidConfig, s.Name())
		}
		if pos < last {
			return nil, fmt.Errorf("%w: post-processor %q out of order (want tags, language, rerank)",
				domain.ErrInvalidConfig, s.Name())
		}
		seen[s.Name()] = struct{}{}
		last = pos
	}
	return &Chain{stages: stages}, nil
}

// Build resolves stage names against a registry and validates the order.
func Build(names []string, registry Registry) (*Chain, error) {
	stages := make([]Stage, 0, len(names))
	for _, n := range names {
		s, ok := registry[n]
		if !ok {
			return nil, fmt.Errorf("%w: post-processor %q is not available", domain.ErrInvalidConfig, n)
		}
		stages = append(stages, s)
	}
	return NewChain(stages...)
}

// Names returns the configured stage names in order.
func (c *Chain) Names() []string {
	out := make([]string, len(c.stages))
	for i, s := range c.stages {
		out[i] = s.Name()
	}
	return out
}

// Apply runs every stage in order.
func (c *Chain) Apply(ctx context.Context, in []result.Scored, pc Context) []result.Scored {
	log := logger.FromContext(ctx)
	out := in
	for _, s := range c.stages {
		before := len(out)
		out = s.Apply(ctx, out, pc)
		log.Debug("Post-processor applied",
			zap.String("stage", s.Name()),
			zap.Int("in", before),
			zap.Int("out", len(out)),
		)
	}
	return out
}
