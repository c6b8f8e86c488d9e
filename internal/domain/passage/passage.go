package passage

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
)

// Reserved metadata keys understood by the retrieval pipeline.
const (
	MetaLanguage = "language"
	MetaTags     = "tags"
)

// Node is a retrievable unit of documentation (immutable value object).
type Node struct {
	id       string
	indexID  string
	text     string
	metadata map[string]any
}

// New validates and creates a Node.
func New(id, indexID, text string, metadata map[string]any) (Node, error) {
	if id == "" {
		return Node{}, fmt.Errorf("node ID is required")
	}
	if indexID == "" {
		return Node{}, fmt.Errorf("index ID is required")
	}
	return Reconstruct(id, indexID, text, metadata), nil
}

// Reconstruct creates a Node without validation (storage hydration).
func Reconstruct(id, indexID, text string, metadata map[string]any) Node {
	return Node{
		id:       id,
		indexID:  indexID,
		text:     text,
		metadata: cloneMeta(metadata),
	}
}

// ID returns the node identifier.
func (n Node) ID() string { return n.id }

// IndexID returns the identifier of the owning index.
func (n Node) IndexID() string { return n.indexID }

// Text returns the passage body.
func (n Node) Text() string { return n.text }

// Metadata returns a copy of the node metadata.
func (n Node) Metadata() map[string]any {
	if n.metadata == nil {
		return map[string]any{}
	}
	return cloneMeta(n.metadata)
}

// cloneMeta deep-copies metadata so nested lists and maps (tags decoded from
// JSON arrive as []any) are never shared between a node and its callers.
func cloneMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMeta(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	case map[string]string:
		return maps.Clone(t)
	default:
		return v
	}
}

// Language returns the normalized language tag, or "" if the node has none.
func (n Node) Language() string {
	v, ok := n.metadata[MetaLanguage]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return NormalizeLanguage(s)
}

// Tags returns the node's topical tags, sorted and de-duplicated.
// Stored tags may be a list or a comma-separated string.
func (n Node) Tags() []string {
	raw, ok := n.metadata[MetaTags]
	if !ok {
		return nil
	}

	var tags []string
	switch v := raw.(type) {
	case []string:
		tags = v
	case []any:
		for _, t := range v {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
	case string:
		tags = strings.Split(v, ",")
	default:
		return nil
	}

	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// NormalizeLanguage lowercases and trims a language tag.
func NormalizeLanguage(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}

// Hit is a (node id, score) pair produced by a single search strategy.
// Scores are only comparable within one result list.
type Hit struct {
	NodeID string
	Score  float64
}
