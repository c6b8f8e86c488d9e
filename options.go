package supportbot

import (
	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver       string // "redis" or "artifact"
	addrs        []string
	password     string
	artifactPath string
	keyPrefix    string

	embedder   Embedder
	rewriter   Rewriter
	reranker   Reranker
	numQueries int

	indices          []string
	topK             int
	similarityTopK   int
	language         string
	fallbackLanguage string
	postProcessors   []string
	minSimilarity    *float64

	logger *zap.Logger
}

// WithRedis reads pre-built indices from a Redis 8+ instance with RediSearch.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverRedis
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithArtifact loads pre-built indices from an artifact directory into memory.
func WithArtifact(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverArtifact
		c.artifactPath = dir
	})
}

// WithKeyPrefix overrides the Redis key namespace (default "supportbot:") for this client only.
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithIndices selects the indices to search.
// Without it a client serves every index in the artifact manifest, or every FT index under the key prefix.
func WithIndices(indices ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.indices = append(c.indices, indices...)
	})
}

// WithEmbedder sets the query embedder. Required.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithRewriter enables multi-query retrieval: numQueries includes the original query.
func WithRewriter(r Rewriter, numQueries int) Option {
	return optionFunc(func(c *clientConfig) {
		c.rewriter = r
		c.numQueries = numQueries
	})
}

// WithReranker sets the cross-encoder used by the "rerank" post-processor.
func WithReranker(r Reranker) Option {
	return optionFunc(func(c *clientConfig) {
		c.reranker = r
	})
}

// WithTopK sets the default number of passages per call.
func WithTopK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.topK = k
	})
}

// WithSimilarityTopK sets how many candidates each dense and sparse search returns.
func WithSimilarityTopK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.similarityTopK = k
	})
}

// WithLanguage sets the default passage language and the language-neutral fallback.
func WithLanguage(language, fallback string) Option {
	return optionFunc(func(c *clientConfig) {
		c.language = language
		c.fallbackLanguage = fallback
	})
}

// WithPostProcessors sets the post-processor chain, e.g. "tags", "language", "rerank".
func WithPostProcessors(names ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.postProcessors = names
	})
}

// WithAvoidQueryMinSimilarity sets the dense similarity floor applied when a call sets AvoidQuery (default 0.4). 0 disables the floor.
func WithAvoidQueryMinSimilarity(v float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.minSimilarity = &v
	})
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
