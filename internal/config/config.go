package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/supportbot/internal/domain"
)

// Database drivers.
const (
	DriverRedis    = "redis"
	DriverArtifact = "artifact"
)

// Config holds the retriever service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Retriever  RetrieverConfig  `yaml:"retriever"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Rerank     RerankConfig     `yaml:"rerank"`
	Rewrite    RewriteConfig    `yaml:"rewrite"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig selects and configures the index store.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, artifact (default: redis)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	ArtifactPath     string   `yaml:"artifact_path"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// RetrieverConfig holds the engine settings.
type RetrieverConfig struct {
	Indices                 []string       `yaml:"indices"`
	TopK                    int            `yaml:"top_k"`
	SimilarityTopK          int            `yaml:"similarity_top_k"`
	Language                string         `yaml:"language"`
	FallbackLanguage        string         `yaml:"fallback_language"`
	NumQueries              int            `yaml:"num_queries"`
	RRFK                    int            `yaml:"rrf_k"`
	MaxConcurrency          int            `yaml:"max_concurrency"`
	AvoidQueryMinSimilarity *float64       `yaml:"avoid_query_min_similarity"`
	PostProcessors          []string       `yaml:"postprocessors"`
	Timeouts                TimeoutsConfig `yaml:"timeouts"`
}

// TimeoutsConfig bounds each provider and store call, in milliseconds.
type TimeoutsConfig struct {
	EmbedMs   int `yaml:"embed_ms"`
	SearchMs  int `yaml:"search_ms"`
	RewriteMs int `yaml:"rewrite_ms"`
	RerankMs  int `yaml:"rerank_ms"`
}

// Embed returns the embed timeout.
func (t TimeoutsConfig) Embed() time.Duration { return ms(t.EmbedMs) }

// Search returns the per-search timeout.
func (t TimeoutsConfig) Search() time.Duration { return ms(t.SearchMs) }

// Rewrite returns the rewrite timeout.
func (t TimeoutsConfig) Rewrite() time.Duration { return ms(t.RewriteMs) }

// Rerank returns the rerank timeout.
func (t TimeoutsConfig) Rerank() time.Duration { return ms(t.RerankMs) }

// EmbeddingConfig holds the query embedding provider settings.
type EmbeddingConfig struct {
	Provider         string      `yaml:"provider"`
	APIKey           string      `yaml:"api_key"`
	BaseURL          string      `yaml:"base_url"`
	Model            string      `yaml:"model"`
	Dimensions       int         `yaml:"dimensions"`
	QueryInstruction string      `yaml:"query_instruction"`
	Cache            CacheConfig `yaml:"cache"`
}

// CacheConfig holds the two-level embedding cache settings.
type CacheConfig struct {
	LRUSize int  `yaml:"lru_size"` // 0 disables the in-process layer
	TTLSec  int  `yaml:"ttl_sec"`  // shared KV layer TTL; 0 keeps entries
	KV      bool `yaml:"kv"`       // enable the shared KV layer (redis driver only)
}

// RerankConfig holds the re-rank provider settings. Empty api_key disables re-ranking.
type RerankConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	EnglishModel      string  `yaml:"english_model"`
	MultilingualModel string  `yaml:"multilingual_model"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Enabled reports whether a re-rank provider is configured.
func (r RerankConfig) Enabled() bool { return r.APIKey != "" }

// RewriteConfig holds the query rewrite settings. Credentials default to the embedding provider's.
type RewriteConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
}

// ResilienceConfig holds retry and circuit breaker settings for provider calls.
type ResilienceConfig struct {
	RetryMaxAttempts      int     `yaml:"retry_max_attempts"`
	RetryInitialBackoffMs int     `yaml:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs     int     `yaml:"retry_max_backoff_ms"`
	RetryMultiplier       float64 `yaml:"retry_multiplier"`
	BreakerEnabled        *bool   `yaml:"breaker_enabled"`
	BreakerMinRequests    uint32  `yaml:"breaker_min_requests"`
	BreakerFailureRatio   float64 `yaml:"breaker_failure_ratio"`
	BreakerOpenSec        int     `yaml:"breaker_open_sec"`
}

// Load reads configuration from config/<env>.yaml (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands ${VAR} placeholders, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverRedis
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = domain.DefaultKeyPrefix
	}

	c.applyRetrieverDefaults()

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	emb := domain.DefaultEmbedding()
	if c.Embedding.Model == "" {
		c.Embedding.Model = emb.Model
	}
	if c.Embedding.Dimensions == 0 {
		c.Embedding.Dimensions = emb.Dimensions
	}

	if c.Rerank.EnglishModel == "" {
		c.Rerank.EnglishModel = "rerank-english-v2.0"
	}
	if c.Rerank.MultilingualModel == "" {
		c.Rerank.MultilingualModel = "rerank-multilingual-v2.0"
	}

	if c.Rewrite.APIKey == "" {
		c.Rewrite.APIKey = c.Embedding.APIKey
	}
	if c.Rewrite.BaseURL == "" {
		c.Rewrite.BaseURL = c.Embedding.BaseURL
	}
	if c.Rewrite.Model == "" {
		c.Rewrite.Model = "gpt-4o-mini"
	}

	if c.Resilience.BreakerEnabled == nil {
		enabled := true
		c.Resilience.BreakerEnabled = &enabled
	}
}

func (c *Config) applyRetrieverDefaults() {
	r := &c.Retriever
	if r.TopK <= 0 {
		r.TopK = domain.DefaultTopK
	}
	if r.SimilarityTopK <= 0 {
		r.SimilarityTopK = domain.DefaultSimilarityTopK
	}
	if r.Language == "" {
		r.Language = domain.DefaultLanguage
	}
	if r.FallbackLanguage == "" {
		r.FallbackLanguage = domain.DefaultFallbackLanguage
	}
	if r.NumQueries <= 0 {
		r.NumQueries = 1
	}
	if r.RRFK <= 0 {
		r.RRFK = domain.DefaultRRFK
	}
	if r.MaxConcurrency <= 0 {
		r.MaxConcurrency = 8
	}
	// nil means unset; an explicit 0 disables the floor in avoid-query mode
	if r.AvoidQueryMinSimilarity == nil {
		floor := 0.4
		r.AvoidQueryMinSimilarity = &floor
	}
	if r.PostProcessors == nil {
		r.PostProcessors = []string{"tags", "language"}
	}
	if r.Timeouts.EmbedMs <= 0 {
		r.Timeouts.EmbedMs = 5000
	}
	if r.Timeouts.SearchMs <= 0 {
		r.Timeouts.SearchMs = 5000
	}
	if r.Timeouts.RewriteMs <= 0 {
		r.Timeouts.RewriteMs = 10000
	}
	if r.Timeouts.RerankMs <= 0 {
		r.Timeouts.RerankMs = 10000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case DriverRedis:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", DriverRedis)
		}
	case DriverArtifact:
		if c.Database.ArtifactPath == "" {
			return fmt.Errorf("database.artifact_path is required for driver %q", DriverArtifact)
		}
		if c.Embedding.Cache.KV {
			return fmt.Errorf("embedding.cache.kv requires database.driver %q", DriverRedis)
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverRedis, DriverArtifact, c.Database.Driver)
	}
	if f := c.Retriever.AvoidQueryMinSimilarity; f != nil && (*f < 0 || *f > 1) {
		return fmt.Errorf("retriever.avoid_query_min_similarity must be between 0 and 1, got %v", *f)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must be non-negative, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.Cache.LRUSize < 0 {
		return fmt.Errorf("embedding.cache.lru_size must be non-negative, got %d", c.Embedding.Cache.LRUSize)
	}
	if c.Rerank.RequestsPerSecond < 0 {
		return fmt.Errorf("rerank.requests_per_second must be non-negative, got %v", c.Rerank.RequestsPerSecond)
	}
	if c.Retriever.NumQueries > 1 && c.Rewrite.APIKey == "" {
		return fmt.Errorf("retriever.num_queries > 1 requires rewrite.api_key or embedding.api_key")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
