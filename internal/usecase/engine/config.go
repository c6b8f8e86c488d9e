package engine

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/usecase/postprocess"
	"github.com/kailas-cloud/supportbot/internal/usecase/retrieval"
)

// DefaultAvoidQueryMinSimilarity is the dense similarity floor used when a caller asks to avoid weak matches.
const DefaultAvoidQueryMinSimilarity = 0.4

// Timeouts bound every suspension point of a retrieve call.
type Timeouts struct {
	Embed   time.Duration
	Search  time.Duration
	Rewrite time.Duration
	Rerank  time.Duration
}

// withDefaults fills zero timeouts from DefaultConfig so a partial Config literal never arms a 0s deadline.
func (t Timeouts) withDefaults() Timeouts {
	d := DefaultConfig().Timeouts
	if t.Embed == 0 {
		t.Embed = d.Embed
	}
	if t.Search == 0 {
		t.Search = d.Search
	}
	if t.Rewrite == 0 {
		t.Rewrite = d.Rewrite
	}
	if t.Rerank == 0 {
		t.Rerank = d.Rerank
	}
	return t
}

// RerankModels selects the cross-encoder per query language.
type RerankModels struct {
	English      string
	Multilingual string
}

// Config is the engine configuration. It is immutable after New.
type Config struct {
	Indices                 []string
	TopK                    int
	SimilarityTopK          int
	Language                string
	FallbackLanguage        string
	NumQueries              int
	RRFK                    int
	MaxConcurrency          int
	AvoidQueryMinSimilarity float64
	PostProcessors          []string
	RerankModels            RerankModels
	Timeouts                Timeouts
}

// DefaultConfig returns the engine defaults. Indices must still be set.
func DefaultConfig() Config {
	return Config{
		TopK:                    domain.DefaultTopK,
		SimilarityTopK:          domain.DefaultSimilarityTopK,
		Language:                domain.DefaultLanguage,
		FallbackLanguage:        domain.DefaultFallbackLanguage,
		NumQueries:              1,
		RRFK:                    domain.DefaultRRFK,
		MaxConcurrency:          retrieval.DefaultMaxConcurrency,
		AvoidQueryMinSimilarity: DefaultAvoidQueryMinSimilarity,
		PostProcessors:          []string{postprocess.StageTags, postprocess.StageLanguage},
		RerankModels: RerankModels{
			English:      postprocess.DefaultEnglishModel,
			Multilingual: postprocess.DefaultMultilingualModel,
		},
		Timeouts: Timeouts{
			Embed:   retrieval.DefaultEmbedTimeout,
			Search:  retrieval.DefaultSearchTimeout,
			Rewrite: retrieval.DefaultRewriteTimeout,
			Rerank:  postprocess.DefaultRerankTimeout,
		},
	}
}

// Validate checks structural constraints. Zero timeouts are defaulted by New; index existence is checked there too.
func (c Config) Validate() error {
	if len(c.Indices) == 0 {
		return fmt.Errorf("%w: at least one index is required", domain.ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.Indices))
	for _, idx := range c.Indices {
		if idx == "" {
			return fmt.Errorf("%w: empty index id", domain.ErrInvalidConfig)
		}
		if _, dup := seen[idx]; dup {
			return fmt.Errorf("%w: index %q listed twice", domain.ErrInvalidConfig, idx)
		}
		seen[idx] = struct{}{}
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive", domain.ErrInvalidConfig)
	}
	if c.SimilarityTopK <= 0 {
		return fmt.Errorf("%w: similarity_top_k must be positive", domain.ErrInvalidConfig)
	}
	if c.NumQueries < 1 {
		return fmt.Errorf("%w: num_queries must be at least 1", domain.ErrInvalidConfig)
	}
	if c.RRFK <= 0 {
		return fmt.Errorf("%w: rrf_k must be positive", domain.ErrInvalidConfig)
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("%w: max_concurrency must be positive", domain.ErrInvalidConfig)
	}
	if c.AvoidQueryMinSimilarity < 0 || c.AvoidQueryMinSimilarity > 1 {
		return fmt.Errorf("%w: avoid_query_min_similarity must be between 0 and 1", domain.ErrInvalidConfig)
	}
	t := c.Timeouts
	if t.Embed < 0 || t.Search < 0 || t.Rewrite < 0 || t.Rerank < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", domain.ErrInvalidConfig)
	}
	return nil
}
