package supportbot

import (
	"github.com/kailas-cloud/supportbot/internal/domain/retrieval/options"
)

// Passage is one retrieved documentation passage.
type Passage struct {
	Text     string
	Metadata map[string]any
	Score    float64
}

// RetrieveOptions overrides client defaults for one call. Zero values keep the defaults.
type RetrieveOptions struct {
	TopK        int
	Language    string
	IncludeTags []string
	ExcludeTags []string
	// AvoidQuery drops weakly related passages instead of filling TopK.
	AvoidQuery bool
}

func (o *RetrieveOptions) toRequest() options.Request {
	if o == nil {
		return options.Request{}
	}
	return options.Request{
		TopK:        o.TopK,
		Language:    o.Language,
		IncludeTags: o.IncludeTags,
		ExcludeTags: o.ExcludeTags,
		AvoidQuery:  o.AvoidQuery,
	}
}
