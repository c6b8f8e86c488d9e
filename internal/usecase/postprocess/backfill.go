package postprocess

import "github.com/kailas-cloud/supportbot/internal/domain/retrieval/result"

// tierStrict marks a candidate that passes the filter as configured.
const tierStrict = 0

// backfill keeps every strict candidate and, while fewer than minSize are kept,
// adds relaxed candidates tier by tier in candidate order.
// The output preserves the input's relative order.
func backfill(in []result.Scored, tiers []int, maxTier, minSize int) []result.Scored {
	keep := make([]bool, len(in))
	kept := 0
	for i, t := range tiers {
		if t == tierStrict {
			keep[i] = true
			kept++
		}
	}

	for tier := 1; tier <= maxTier && kept < minSize; tier++ {
		for i, t := range tiers {
			if kept >= minSize {
				break
			}
			if t == tier {
				keep[i] = true
				kept++
			}
		}
	}

	out := make([]result.Scored, 0, kept)
	for i, s := range in {
		if keep[i] {
			out = append(out, s)
		}
	}
	return out
}
