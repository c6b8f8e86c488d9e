package result

import "github.com/kailas-cloud/supportbot/internal/domain/passage"

// Scored is a node paired with a relevance score.
// Scores from different strategies or indices are not comparable; only ranks are.
type Scored struct {
	node  passage.Node
	score float64
}

// New creates a scored node.
func New(node passage.Node, score float64) Scored {
	return Scored{node: node, score: score}
}

// Node returns the underlying passage node.
func (s Scored) Node() passage.Node { return s.node }

// ID returns the node identifier.
func (s Scored) ID() string { return s.node.ID() }

// Score returns the relevance score.
func (s Scored) Score() float64 { return s.score }

// WithScore returns a copy carrying a new score.
func (s Scored) WithScore(score float64) Scored {
	return Scored{node: s.node, score: score}
}

// Truncate returns at most n leading items. n <= 0 yields an empty list.
func Truncate(list []Scored, n int) []Scored {
	if n <= 0 {
		return []Scored{}
	}
	if len(list) <= n {
		return list
	}
	return list[:n]
}

// Dedup drops repeated node ids, keeping the first occurrence.
func Dedup(list []Scored) []Scored {
	seen := make(map[string]struct{}, len(list))
	out := make([]Scored, 0, len(list))
	for _, s := range list {
		if _, ok := seen[s.ID()]; ok {
			continue
		}
		seen[s.ID()] = struct{}{}
		out = append(out, s)
	}
	return out
}
