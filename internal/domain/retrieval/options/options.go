package options

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/domain/passage"
)

// MaxTopK caps the number of passages a single call may request.
const MaxTopK = 100

// TagSet is a normalized, immutable set of tags.
type TagSet struct {
	tags map[string]struct{}
}

// NewTagSet trims tags and drops empty entries.
func NewTagSet(tags ...string) TagSet {
	m := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		m[t] = struct{}{}
	}
	return TagSet{tags: m}
}

// Empty reports whether the set has no tags.
func (s TagSet) Empty() bool { return len(s.tags) == 0 }

// Len returns the number of tags.
func (s TagSet) Len() int { return len(s.tags) }

// Contains reports whether tag is in the set.
func (s TagSet) Contains(tag string) bool {
	_, ok := s.tags[tag]
	return ok
}

// Intersects reports whether any of tags is in the set.
func (s TagSet) Intersects(tags []string) bool {
	for _, t := range tags {
		if s.Contains(t) {
			return true
		}
	}
	return false
}

// Slice returns the tags in sorted order.
func (s TagSet) Slice() []string {
	out := make([]string, 0, len(s.tags))
	for t := range s.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Request carries caller overrides for one retrieve call. Zero values mean "use the default".
type Request struct {
	TopK        int
	Language    string
	IncludeTags []string
	ExcludeTags []string
	AvoidQuery  bool
}

// Defaults are the engine-level values a Request falls back to.
type Defaults struct {
	TopK     int
	Language string
}

// Options are the resolved per-call options. Never persisted between calls.
type Options struct {
	topK        int
	language    string
	includeTags TagSet
	excludeTags TagSet
	avoidQuery  bool
}

// Resolve merges the request over defaults.
// Negative TopK is rejected; TopK above MaxTopK is clamped.
func Resolve(req Request, def Defaults) (Options, error) {
	if req.TopK < 0 {
		return Options{}, fmt.Errorf("%w: top_k must be non-negative, got %d", domain.ErrInvalidQuery, req.TopK)
	}

	topK := req.TopK
	if topK == 0 {
		topK = def.TopK
	}
	if topK <= 0 {
		topK = domain.DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	lang := passage.NormalizeLanguage(req.Language)
	if lang == "" {
		lang = passage.NormalizeLanguage(def.Language)
	}
	if lang == "" {
		lang = domain.DefaultLanguage
	}

	return Options{
		topK:        topK,
		language:    lang,
		includeTags: NewTagSet(req.IncludeTags...),
		excludeTags: NewTagSet(req.ExcludeTags...),
		avoidQuery:  req.AvoidQuery,
	}, nil
}

// TopK returns the maximum number of passages to return.
func (o Options) TopK() int { return o.topK }

// Language returns the requested passage language (normalized).
func (o Options) Language() string { return o.language }

// IncludeTags returns the tags a passage should carry.
func (o Options) IncludeTags() TagSet { return o.includeTags }

// ExcludeTags returns the tags a passage should not carry.
func (o Options) ExcludeTags() TagSet { return o.excludeTags }

// AvoidQuery reports whether weakly related passages must be suppressed.
func (o Options) AvoidQuery() bool { return o.avoidQuery }
