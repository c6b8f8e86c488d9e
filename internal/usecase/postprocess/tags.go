package postprocess

import (
	"context"

	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/result"
)

// TagFilter keeps passages carrying an included tag and no excluded tag.
//
// Backfill tiers when the strict set is short:
//  1. matches include but carries an excluded tag
//  2. fails include, carries no excluded tag
//  3. fails both
type TagFilter struct{}

// NewTagFilter creates a tag filter stage.
func NewTagFilter() *TagFilter { return &TagFilter{} }

// Name implements Stage.
func (*TagFilter) Name() string { return StageTags }

// Apply implements Stage.
func (*TagFilter) Apply(_ context.Context, in []result.Scored, pc Context) []result.Scored {
	if pc.IncludeTags.Empty() && pc.ExcludeTags.Empty() {
		return in
	}

	tiers := make([]int, len(in))
	for i, s := range in {
		tags := s.Node().Tags()
		included := pc.IncludeTags.Empty() || pc.IncludeTags.Intersects(tags)
		excluded := pc.ExcludeTags.Intersects(tags)
		switch {
		case included && !excluded:
			tiers[i] = tierStrict
		case included:
			tiers[i] = 1
		case !excluded:
			tiers[i] = 2
		default:
			tiers[i] = 3
		}
	}
	return backfill(in, tiers, 3, pc.MinResultSize)
}
