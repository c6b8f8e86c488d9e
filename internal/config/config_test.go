package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{Port: 8080},
		Database: DatabaseConfig{
			Addrs: []string{"localhost:6379"},
		},
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()

	if cfg.Database.Driver != DriverRedis {
		t.Errorf("driver = %q, want %q", cfg.Database.Driver, DriverRedis)
	}
	if cfg.Storage.KeyPrefix != "supportbot:" {
		t.Errorf("key prefix = %q", cfg.Storage.KeyPrefix)
	}
	r := cfg.Retriever
	if r.TopK != 10 || r.SimilarityTopK != 10 {
		t.Errorf("top_k = %d, similarity_top_k = %d", r.TopK, r.SimilarityTopK)
	}
	if r.Language != "en" || r.FallbackLanguage != "python" {
		t.Errorf("language = %q, fallback = %q", r.Language, r.FallbackLanguage)
	}
	if r.RRFK != 60 || r.NumQueries != 1 {
		t.Errorf("rrf_k = %d, num_queries = %d", r.RRFK, r.NumQueries)
	}
	if r.AvoidQueryMinSimilarity == nil || *r.AvoidQueryMinSimilarity != 0.4 {
		t.Errorf("avoid floor = %v", r.AvoidQueryMinSimilarity)
	}
	if strings.Join(r.PostProcessors, ",") != "tags,language" {
		t.Errorf("postprocessors = %v", r.PostProcessors)
	}
	if r.Timeouts.Embed() != 5*time.Second || r.Timeouts.Rerank() != 10*time.Second {
		t.Errorf("timeouts = %+v", r.Timeouts)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" || cfg.Embedding.Dimensions != 512 {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}
	if cfg.Resilience.BreakerEnabled == nil || !*cfg.Resilience.BreakerEnabled {
		t.Error("breaker should default to enabled")
	}
	if cfg.Rerank.Enabled() {
		t.Error("rerank should be disabled without api key")
	}
}

func TestApplyDefaults_KeepsExplicitEmptyPostProcessors(t *testing.T) {
	cfg := validConfig()
	cfg.Retriever.PostProcessors = []string{}
	cfg.ApplyDefaults()

	if len(cfg.Retriever.PostProcessors) != 0 {
		t.Errorf("postprocessors = %v, want empty", cfg.Retriever.PostProcessors)
	}
}

func TestApplyDefaults_RewriteInheritsEmbeddingCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.APIKey = "sk-emb"
	cfg.Embedding.BaseURL = "https://llm.example.com/v1"
	cfg.ApplyDefaults()

	if cfg.Rewrite.APIKey != "sk-emb" || cfg.Rewrite.BaseURL != "https://llm.example.com/v1" {
		t.Errorf("rewrite = %+v", cfg.Rewrite)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid redis", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"redis without addrs", func(c *Config) { c.Database.Addrs = nil }, "database.addrs"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "sqlite" }, "database.driver"},
		{"artifact without path", func(c *Config) {
			c.Database.Driver = DriverArtifact
		}, "database.artifact_path"},
		{"artifact with kv cache", func(c *Config) {
			c.Database.Driver = DriverArtifact
			c.Database.ArtifactPath = "/data/docs"
			c.Embedding.Cache.KV = true
		}, "embedding.cache.kv"},
		{"valid artifact", func(c *Config) {
			c.Database.Driver = DriverArtifact
			c.Database.ArtifactPath = "/data/docs"
			c.Database.Addrs = nil
		}, ""},
		{"avoid floor out of range", func(c *Config) {
			floor := 1.5
			c.Retriever.AvoidQueryMinSimilarity = &floor
		}, "avoid_query_min_similarity"},
		{"negative lru", func(c *Config) { c.Embedding.Cache.LRUSize = -1 }, "lru_size"},
		{"negative rps", func(c *Config) { c.Rerank.RequestsPerSecond = -1 }, "requests_per_second"},
		{"multi query without key", func(c *Config) { c.Retriever.NumQueries = 3 }, "num_queries"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.ApplyDefaults()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("RETRIEVER_LANGUAGE", "ja")
	t.Setenv("RETRIEVER_EMPTY", "")

	in := []byte("a: ${RETRIEVER_LANGUAGE}\nb: ${RETRIEVER_EMPTY:-fallback}\nc: ${RETRIEVER_UNSET_VAR}\n")
	got := string(expandEnvVars(in))
	want := "a: ja\nb: fallback\nc: \n"
	if got != want {
		t.Errorf("expandEnvVars() =\n%q\nwant\n%q", got, want)
	}
}

const testYAML = `
http:
  port: 8080
database:
  driver: artifact
  artifact_path: ${RETRIEVER_INDEX_ARTIFACT:-./artifacts/docs}
retriever:
  indices: [docs-en, docs-ja]
  top_k: ${RETRIEVER_TOP_K:-10}
  similarity_top_k: ${RETRIEVER_SIMILARITY_TOP_K:-10}
  language: ${RETRIEVER_LANGUAGE:-en}
  postprocessors: [tags, language, rerank]
rerank:
  api_key: ${COHERE_API_KEY:-}
`

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("RETRIEVER_TOP_K", "4")
	t.Setenv("RETRIEVER_SIMILARITY_TOP_K", "20")
	t.Setenv("RETRIEVER_LANGUAGE", "ja")
	t.Setenv("RETRIEVER_INDEX_ARTIFACT", "/srv/docs")
	t.Setenv("COHERE_API_KEY", "co-key")

	cfg, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Retriever.TopK != 4 || cfg.Retriever.SimilarityTopK != 20 {
		t.Errorf("top_k = %d, similarity_top_k = %d", cfg.Retriever.TopK, cfg.Retriever.SimilarityTopK)
	}
	if cfg.Retriever.Language != "ja" {
		t.Errorf("language = %q", cfg.Retriever.Language)
	}
	if cfg.Database.ArtifactPath != "/srv/docs" {
		t.Errorf("artifact path = %q", cfg.Database.ArtifactPath)
	}
	if !cfg.Rerank.Enabled() {
		t.Error("rerank should be enabled with api key")
	}
	if len(cfg.Retriever.Indices) != 2 {
		t.Errorf("indices = %v", cfg.Retriever.Indices)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Retriever.TopK != 10 || cfg.Retriever.Language != "en" {
		t.Errorf("retriever = %+v", cfg.Retriever)
	}
	if cfg.Database.ArtifactPath != "./artifacts/docs" {
		t.Errorf("artifact path = %q", cfg.Database.ArtifactPath)
	}
}

func TestParse_ExplicitZeroAvoidFloor(t *testing.T) {
	data := strings.Replace(testYAML, "  postprocessors:", "  avoid_query_min_similarity: 0\n  postprocessors:", 1)
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f := cfg.Retriever.AvoidQueryMinSimilarity; f == nil || *f != 0 {
		t.Errorf("explicit 0 floor must be kept, got %v", f)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte(testYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("port = %d", cfg.HTTP.Port)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if got := GetEnv(); got != "local" {
		t.Errorf("GetEnv() = %q, want local", got)
	}
	t.Setenv("ENV", "prod")
	if got := GetEnv(); got != "prod" {
		t.Errorf("GetEnv() = %q, want prod", got)
	}
}
