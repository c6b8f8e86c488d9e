package supportbot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	dbRedis "github.com/kailas-cloud/supportbot/internal/db/redis"
	"github.com/kailas-cloud/supportbot/internal/logger"
	"github.com/kailas-cloud/supportbot/internal/repository/artifact"
	indexrepo "github.com/kailas-cloud/supportbot/internal/repository/index"
	"github.com/kailas-cloud/supportbot/internal/usecase/engine"
)

const (
	driverRedis    = "redis"
	driverArtifact = "artifact"

	defaultReadinessTimeout = 10 * time.Second
)

// backend is an index store the client can ping.
type backend interface {
	engine.IndexStore
	Ping(ctx context.Context) error
}

// Client is the supportbot SDK entry point. Safe for concurrent use.
type Client struct {
	engine *engine.Engine
	store  backend
	close  func()
	logger *zap.Logger
}

// New connects to the index store, verifies the indices and wires the retrieval pipeline.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.embedder == nil {
		return nil, fmt.Errorf("supportbot: %w: embedder required (use WithEmbedder)", ErrInvalidConfig)
	}
	store, closeFn, indices, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(ctx, engineConfig(cfg, indices), engineDeps(cfg, store))
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("supportbot: %w", err)
	}

	return &Client{engine: eng, store: store, close: closeFn, logger: cfg.logger}, nil
}

func openStore(ctx context.Context, cfg *clientConfig) (backend, func(), []string, error) {
	switch cfg.driver {
	case driverArtifact:
		s, err := artifact.Load(ctx, cfg.artifactPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("supportbot: load artifact: %w", err)
		}
		indices := cfg.indices
		if len(indices) == 0 {
			indices = s.Indices()
		}
		return s, func() { _ = s.Close() }, indices, nil
	case driverRedis:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:     cfg.addrs,
			Password:  cfg.password,
			KeyPrefix: cfg.keyPrefix,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("supportbot: create redis store: %w", err)
		}
		if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, nil, nil, fmt.Errorf("supportbot: database not ready: %w", err)
		}
		repo, indices, err := redisBackend(ctx, s, cfg.indices)
		if err != nil {
			s.Close()
			return nil, nil, nil, err
		}
		return repo, s.Close, indices, nil
	case "":
		return nil, nil, nil, errors.New("supportbot: index store required (use WithRedis or WithArtifact)")
	default:
		return nil, nil, nil, fmt.Errorf("supportbot: unknown driver %q", cfg.driver)
	}
}

// redisBackend scopes an index repo to the store's key prefix.
// With no explicit indices it serves every FT index under that prefix.
func redisBackend(ctx context.Context, s *dbRedis.Store, indices []string) (*indexrepo.Repo, []string, error) {
	repo := indexrepo.New(s, s.KeyPrefix())
	if len(indices) > 0 {
		return repo, indices, nil
	}
	found, err := repo.ListIndices(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("supportbot: discover indices: %w", err)
	}
	return repo, found, nil
}

func engineConfig(cfg *clientConfig, indices []string) engine.Config {
	ec := engine.DefaultConfig()
	ec.Indices = indices
	if cfg.topK > 0 {
		ec.TopK = cfg.topK
	}
	if cfg.similarityTopK > 0 {
		ec.SimilarityTopK = cfg.similarityTopK
	}
	if cfg.language != "" {
		ec.Language = cfg.language
	}
	if cfg.fallbackLanguage != "" {
		ec.FallbackLanguage = cfg.fallbackLanguage
	}
	if cfg.numQueries > 0 {
		ec.NumQueries = cfg.numQueries
	}
	if cfg.postProcessors != nil {
		ec.PostProcessors = cfg.postProcessors
	}
	if cfg.minSimilarity != nil {
		ec.AvoidQueryMinSimilarity = *cfg.minSimilarity
	}
	return ec
}

func engineDeps(cfg *clientConfig, store backend) engine.Deps {
	deps := engine.Deps{
		Store:    store,
		Embedder: &embedderAdapter{inner: cfg.embedder},
	}
	// Leave interfaces nil (not a typed nil adapter) when unset.
	if cfg.rewriter != nil {
		deps.Rewriter = cfg.rewriter
	}
	if cfg.reranker != nil {
		deps.Reranker = &rerankerAdapter{inner: cfg.reranker}
	}
	return deps
}

// Retrieve returns at most TopK passages supporting the query, best first.
// opts may be nil. An empty result is not an error.
func (c *Client) Retrieve(ctx context.Context, query string, opts *RetrieveOptions) ([]Passage, error) {
	ctx = logger.ContextWithLogger(ctx, c.logger)
	passages, err := c.engine.Retrieve(ctx, query, opts.toRequest())
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	out := make([]Passage, len(passages))
	for i, p := range passages {
		out[i] = Passage{Text: p.Text, Metadata: p.Metadata, Score: p.Score}
	}
	return out, nil
}

// Indices returns the searched index ids.
func (c *Client) Indices() []string {
	return c.engine.Indices()
}

// Ping checks index store connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.close != nil {
		c.close()
	}
}
