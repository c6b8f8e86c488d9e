package retrieval

import (
	"sort"

	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/result"
)

// fuseRRF merges ranked lists via Reciprocal Rank Fusion.
// score(d) = sum of 1/(k + rank_i(d)) over every list where d appears, rank 1-based.
// The first occurrence of a node is kept; equal scores keep first-seen order.
func fuseRRF(lists [][]result.Scored, k, topK int) []result.Scored {
	if k <= 0 {
		k = domain.DefaultRRFK
	}

	type fused struct {
		res   result.Scored
		score float64
		order int
	}

	merged := make(map[string]*fused)
	order := 0
	for _, list := range lists {
		for rank, r := range list {
			s := 1.0 / float64(k+rank+1)
			if existing, ok := merged[r.ID()]; ok {
				existing.score += s
				continue
			}
			merged[r.ID()] = &fused{res: r, score: s, order: order}
			order++
		}
	}

	entries := make([]*fused, 0, len(merged))
	for _, f := range merged {
		entries = append(entries, f)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].order < entries[j].order
	})

	results := make([]result.Scored, len(entries))
	for i, f := range entries {
		results[i] = f.res.WithScore(f.score)
	}

	return result.Truncate(results, topK)
}
