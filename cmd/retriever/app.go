package main

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/supportbot/internal/config"
	dbRedis "github.com/kailas-cloud/supportbot/internal/db/redis"
	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/metrics"
	"github.com/kailas-cloud/supportbot/internal/repository/artifact"
	"github.com/kailas-cloud/supportbot/internal/repository/embcache"
	indexrepo "github.com/kailas-cloud/supportbot/internal/repository/index"
	"github.com/kailas-cloud/supportbot/internal/resilience"
	cohereRerank "github.com/kailas-cloud/supportbot/internal/transport/cohere"
	openaiTransport "github.com/kailas-cloud/supportbot/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/supportbot/internal/usecase/embedding"
	"github.com/kailas-cloud/supportbot/internal/usecase/engine"
	healthuc "github.com/kailas-cloud/supportbot/internal/usecase/health"
	"github.com/kailas-cloud/supportbot/internal/usecase/postprocess"
)

// indexBackend is an index store that can also be pinged by the health check.
type indexBackend interface {
	engine.IndexStore
	Ping(ctx context.Context) error
}

// kvStore backs the shared embedding cache. Cache keys live under the store's prefix.
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	KeyPrefix() string
}

// app is the wired retriever: engine, health service and the resources to release.
type app struct {
	engine  *engine.Engine
	health  *healthuc.Service
	closers []func()
}

// Close releases backend connections in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp is the composition root shared by serve and query.
func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	backend, kv, indices, err := a.openBackend(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	executor := resilience.NewExecutor(resilienceConfig(cfg.Resilience), logger)

	embedder, err := buildEmbedder(cfg.Embedding, executor, kv, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Int("lru_size", cfg.Embedding.Cache.LRUSize),
		zap.Bool("kv_cache", kv != nil && cfg.Embedding.Cache.KV),
	)

	deps := engine.Deps{Store: backend, Embedder: embedder}
	if cfg.Retriever.NumQueries > 1 {
		deps.Rewriter = openaiTransport.NewRewriter(&openaiTransport.RewriterConfig{
			Config: openaiTransport.Config{
				APIKey:   cfg.Rewrite.APIKey,
				BaseURL:  cfg.Rewrite.BaseURL,
				Model:    cfg.Rewrite.Model,
				Provider: cfg.Embedding.Provider,
				Executor: executor,
				Logger:   logger,
			},
			Temperature: cfg.Rewrite.Temperature,
		})
	}

	postProcessors := cfg.Retriever.PostProcessors
	if cfg.Rerank.Enabled() {
		deps.Reranker = cohereRerank.NewReranker(cohereRerank.Config{
			APIKey:            cfg.Rerank.APIKey,
			BaseURL:           cfg.Rerank.BaseURL,
			RequestsPerSecond: cfg.Rerank.RequestsPerSecond,
			Burst:             cfg.Rerank.Burst,
			Executor:          executor,
			Logger:            logger,
		})
	} else if slices.Contains(postProcessors, postprocess.StageRerank) {
		logger.Warn("rerank postprocessor configured without rerank.api_key, skipping it")
		postProcessors = slices.DeleteFunc(slices.Clone(postProcessors), func(s string) bool {
			return s == postprocess.StageRerank
		})
	}

	engCfg := engineConfig(cfg.Retriever, cfg.Rerank)
	engCfg.Indices = indices
	engCfg.PostProcessors = postProcessors

	eng, err := engine.New(ctx, engCfg, deps)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}
	logger.Info("Retriever ready",
		zap.Strings("indices", eng.Indices()),
		zap.Strings("postprocessors", eng.PostProcessors()),
		zap.Int("num_queries", engCfg.NumQueries),
	)

	a.engine = eng
	a.health = healthuc.New(backend, newEmbeddingHealthChecker(embedder))
	return a, nil
}

// openBackend connects the configured index store. kv is nil for the artifact driver.
func (a *app) openBackend(
	ctx context.Context, cfg config.Config, logger *zap.Logger,
) (indexBackend, kvStore, []string, error) {
	indices := cfg.Retriever.Indices

	switch cfg.Database.Driver {
	case config.DriverArtifact:
		store, err := artifact.Load(ctx, cfg.Database.ArtifactPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load artifact: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })

		m := store.Manifest()
		if m.Embedding.Model != "" && m.Embedding.Model != cfg.Embedding.Model {
			logger.Warn("Artifact was built with a different embedding model",
				zap.String("artifact_model", m.Embedding.Model),
				zap.String("query_model", cfg.Embedding.Model),
			)
		}
		if m.Embedding.Dimensions > 0 && cfg.Embedding.Dimensions > 0 && m.Embedding.Dimensions != cfg.Embedding.Dimensions {
			return nil, nil, nil, fmt.Errorf("%w: artifact dimensions %d, embedding.dimensions %d",
				domain.ErrInvalidConfig, m.Embedding.Dimensions, cfg.Embedding.Dimensions)
		}
		if len(indices) == 0 {
			indices = store.Indices()
		}
		logger.Info("Loaded index artifact",
			zap.String("path", cfg.Database.ArtifactPath),
			zap.String("version", m.Version),
			zap.Strings("indices", store.Indices()),
		)
		return store, nil, indices, nil

	case config.DriverRedis:
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:     cfg.Database.Addrs,
			Password:  cfg.Database.Password,
			KeyPrefix: cfg.Storage.KeyPrefix,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create database store: %w", err)
		}
		a.closers = append(a.closers, store.Close)

		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			return nil, nil, nil, fmt.Errorf("database not ready: %w", err)
		}
		repo := indexrepo.New(store, store.KeyPrefix())
		if len(indices) == 0 {
			if indices, err = repo.ListIndices(ctx); err != nil {
				return nil, nil, nil, fmt.Errorf("discover indices: %w", err)
			}
		}
		logger.Info("Connected to database",
			zap.Strings("db_addrs", cfg.Database.Addrs),
			zap.String("key_prefix", store.KeyPrefix()),
			zap.Strings("indices", indices),
		)
		return repo, store, indices, nil

	default:
		return nil, nil, nil, fmt.Errorf("%w: unknown database driver %q", domain.ErrInvalidConfig, cfg.Database.Driver)
	}
}

// buildEmbedder assembles the decorator chain: OpenAI -> Instrumented -> KV cache -> LRU -> Instruction.
func buildEmbedder(
	cfg config.EmbeddingConfig,
	executor *resilience.Executor,
	kv kvStore,
	logger *zap.Logger,
) (domain.Embedder, error) {
	// Base provider (with transport metrics built-in)
	var embedder domain.Embedder = openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
		Executor:   executor,
		Logger:     logger,
	})

	// Instrumented (shape check + metrics); cached vectors were validated on the way in
	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, cfg.Model, cfg.Dimensions, logger)

	if kv != nil && cfg.Cache.KV {
		embedder = embcache.New(embedder, kv, kv.KeyPrefix(), cfg.Model,
			time.Duration(cfg.Cache.TTLSec)*time.Second, metrics.EmbeddingCacheTotal, logger)
	}

	if cfg.Cache.LRUSize > 0 {
		lru, err := embcache.NewLRU(embedder, cfg.Cache.LRUSize, metrics.EmbeddingCacheTotal)
		if err != nil {
			return nil, fmt.Errorf("create embedding lru: %w", err)
		}
		embedder = lru
	}

	// Instruction prefix (outermost so cache keys include the instruction)
	if cfg.QueryInstruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, cfg.QueryInstruction)
	}
	return embedder, nil
}

func engineConfig(r config.RetrieverConfig, rr config.RerankConfig) engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Indices = r.Indices
	cfg.TopK = r.TopK
	cfg.SimilarityTopK = r.SimilarityTopK
	cfg.Language = r.Language
	cfg.FallbackLanguage = r.FallbackLanguage
	cfg.NumQueries = r.NumQueries
	cfg.RRFK = r.RRFK
	cfg.MaxConcurrency = r.MaxConcurrency
	if r.AvoidQueryMinSimilarity != nil {
		cfg.AvoidQueryMinSimilarity = *r.AvoidQueryMinSimilarity
	}
	cfg.PostProcessors = r.PostProcessors
	cfg.RerankModels = engine.RerankModels{English: rr.EnglishModel, Multilingual: rr.MultilingualModel}
	cfg.Timeouts = engine.Timeouts{
		Embed:   r.Timeouts.Embed(),
		Search:  r.Timeouts.Search(),
		Rewrite: r.Timeouts.Rewrite(),
		Rerank:  r.Timeouts.Rerank(),
	}
	return cfg
}

func resilienceConfig(c config.ResilienceConfig) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = c.RetryMaxAttempts
	out.RetryInitialBackoff = time.Duration(c.RetryInitialBackoffMs) * time.Millisecond
	out.RetryMaxBackoff = time.Duration(c.RetryMaxBackoffMs) * time.Millisecond
	out.RetryMultiplier = c.RetryMultiplier
	if c.BreakerEnabled != nil {
		out.BreakerEnabled = *c.BreakerEnabled
	}
	out.BreakerMinRequests = c.BreakerMinRequests
	out.BreakerFailureRatio = c.BreakerFailureRatio
	out.BreakerOpenTimeout = time.Duration(c.BreakerOpenSec) * time.Second
	return out
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}
