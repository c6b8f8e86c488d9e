package postprocess

import (
	"context"

	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/domain/passage"
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/result"
)

// LanguageFilter keeps passages in the requested language or the fallback language.
// Passages without a language fail the strict check.
type LanguageFilter struct {
	fallback string
}

// NewLanguageFilter creates a language filter. Empty fallback means "python".
func NewLanguageFilter(fallback string) *LanguageFilter {
	fallback = passage.NormalizeLanguage(fallback)
	if fallback == "" {
		fallback = domain.DefaultFallbackLanguage
	}
	return &LanguageFilter{fallback: fallback}
}

// Name implements Stage.
func (*LanguageFilter) Name() string { return StageLanguage }

// Apply implements Stage.
func (f *LanguageFilter) Apply(_ context.Context, in []result.Scored, pc Context) []result.Scored {
	want := passage.NormalizeLanguage(pc.Language)
	tiers := make([]int, len(in))
	for i, s := range in {
		lang := s.Node().Language()
		if lang != "" && (lang == want || lang == f.fallback) {
			tiers[i] = tierStrict
			continue
		}
		tiers[i] = 1
	}
	return backfill(in, tiers, 1, pc.MinResultSize)
}
