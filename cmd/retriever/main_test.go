package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/supportbot/internal/config"
	"github.com/kailas-cloud/supportbot/internal/domain"
	"github.com/kailas-cloud/supportbot/internal/repository/embcache"
	"github.com/kailas-cloud/supportbot/internal/usecase/engine"
)

// newTestEmbeddingServer answers every embeddings call with vec.
func newTestEmbeddingServer(t *testing.T, vec []float32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": vec},
			},
			"usage": map[string]int{"prompt_tokens": 3, "total_tokens": 3},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeTestArtifact(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	manifest := "version: \"1\"\nembedding:\n  model: text-embedding-3-small\n  dimensions: 3\nindices:\n  - docs-en\n"
	if err := os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(manifest), 0o600); err != nil {
		t.Fatal(err)
	}
	lines := []string{
		`{"id":"n1","text":"Rotate your API key from the dashboard","metadata":{"language":"en","tags":["api"]},"embedding":[1,0,0]}`,
		`{"id":"n2","text":"Webhooks deliver events over HTTPS","metadata":{"language":"en","tags":["webhooks"]},"embedding":[0,1,0]}`,
		`{"id":"n3","text":"Billing invoices are issued monthly","metadata":{"language":"en"},"embedding":[0,0,1]}`,
	}
	if err := os.WriteFile(filepath.Join(dir, "docs-en.jsonl"), []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return dir
}

func writeTestConfig(t *testing.T, artifactDir, embeddingURL string, dims int) string {
	t.Helper()
	cfg := fmt.Sprintf(`
http:
  port: 8080
database:
  driver: artifact
  artifact_path: %s
retriever:
  postprocessors: [tags, language, rerank]
embedding:
  api_key: test-key
  base_url: %s
  dimensions: %d
  cache:
    lru_size: 16
`, artifactDir, embeddingURL, dims)
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestQueryCmd_EndToEnd(t *testing.T) {
	srv := newTestEmbeddingServer(t, []float32{1, 0, 0})
	cfgPath := writeTestConfig(t, writeTestArtifact(t), srv.URL, 3)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--env", "test", "--config", cfgPath, "query", "rotate", "API", "key", "--top-k", "2"})

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("query failed: %v", err)
	}

	var passages []engine.Passage
	if err := json.Unmarshal(out.Bytes(), &passages); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if len(passages) == 0 || len(passages) > 2 {
		t.Fatalf("expected 1..2 passages, got %d", len(passages))
	}
	if !strings.Contains(passages[0].Text, "Rotate your API key") {
		t.Errorf("unexpected top passage: %q", passages[0].Text)
	}
}

func TestBuildApp_ArtifactDimensionMismatch(t *testing.T) {
	srv := newTestEmbeddingServer(t, []float32{1, 0, 0})
	cfg, err := config.LoadFile(writeTestConfig(t, writeTestArtifact(t), srv.URL, 512))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	_, err = buildApp(context.Background(), cfg, zap.NewNop())
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if !strings.Contains(err.Error(), "dimensions") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuildApp_IndicesFromManifest(t *testing.T) {
	srv := newTestEmbeddingServer(t, []float32{0, 1, 0})
	cfg, err := config.LoadFile(writeTestConfig(t, writeTestArtifact(t), srv.URL, 3))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	a, err := buildApp(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer a.Close()

	if got := a.engine.Indices(); len(got) != 1 || got[0] != "docs-en" {
		t.Errorf("indices = %v", got)
	}
	// rerank is dropped without a rerank api key
	if got := strings.Join(a.engine.PostProcessors(), ","); got != "tags,language" {
		t.Errorf("postprocessors = %q", got)
	}
	if report := a.health.Check(context.Background()); report.Checks["index_store"] != "ok" {
		t.Errorf("health = %+v", report)
	}
}

func TestBuildEmbedder_Chain(t *testing.T) {
	srv := newTestEmbeddingServer(t, []float32{1, 0, 0})

	emb, err := buildEmbedder(config.EmbeddingConfig{
		Provider:         "openai",
		APIKey:           "test-key",
		BaseURL:          srv.URL,
		Model:            "text-embedding-3-small",
		Dimensions:       3,
		QueryInstruction: "query: ",
		Cache:            config.CacheConfig{LRUSize: 4},
	}, nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("buildEmbedder: %v", err)
	}
	if _, ok := emb.(*domain.InstructionEmbedder); !ok {
		t.Errorf("outermost embedder = %T, want *domain.InstructionEmbedder", emb)
	}

	emb, err = buildEmbedder(config.EmbeddingConfig{
		APIKey: "k", BaseURL: srv.URL, Model: "m", Dimensions: 3,
		Cache: config.CacheConfig{LRUSize: 4},
	}, nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("buildEmbedder: %v", err)
	}
	lru, ok := emb.(*embcache.LRUEmbedder)
	if !ok {
		t.Fatalf("outermost embedder = %T, want *embcache.LRUEmbedder", emb)
	}
	if _, err := lru.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if lru.Len() != 1 {
		t.Errorf("lru len = %d, want 1", lru.Len())
	}
}

func TestEngineConfig(t *testing.T) {
	var c config.Config
	c.HTTP.Port = 8080
	c.Database.Driver = config.DriverArtifact
	c.Database.ArtifactPath = "/tmp/x"
	c.ApplyDefaults()
	c.Retriever.Indices = []string{"docs-en"}
	c.Retriever.TopK = 4

	got := engineConfig(c.Retriever, c.Rerank)
	if got.TopK != 4 || got.RRFK != 60 || got.Language != "en" {
		t.Errorf("engine config = %+v", got)
	}
	if got.RerankModels.English != "rerank-english-v2.0" {
		t.Errorf("rerank models = %+v", got.RerankModels)
	}
	if got.AvoidQueryMinSimilarity != 0.4 {
		t.Errorf("avoid floor = %v", got.AvoidQueryMinSimilarity)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	noFloor := 0.0
	c.Retriever.AvoidQueryMinSimilarity = &noFloor
	if got := engineConfig(c.Retriever, c.Rerank); got.AvoidQueryMinSimilarity != 0 {
		t.Errorf("explicit 0 floor = %v, want 0", got.AvoidQueryMinSimilarity)
	}
}

func TestResilienceConfig(t *testing.T) {
	disabled := false
	got := resilienceConfig(config.ResilienceConfig{RetryMaxAttempts: 5, BreakerEnabled: &disabled})
	if got.RetryMaxAttempts != 5 || got.BreakerEnabled {
		t.Errorf("resilience config = %+v", got)
	}
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "retriever ") {
		t.Errorf("unexpected output %q", out.String())
	}
}
