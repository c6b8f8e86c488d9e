package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the artifact descriptor at the root of an artifact directory.
const ManifestFile = "manifest.yaml"

// Manifest describes a pre-built index artifact.
// Each listed index has its nodes in <dir>/<index>.jsonl.
type Manifest struct {
	Version   string            `yaml:"version"`
	Embedding ManifestEmbedding `yaml:"embedding"`
	Indices   []string          `yaml:"indices"`
}

// ManifestEmbedding is the embedding model the artifact vectors were produced with.
type ManifestEmbedding struct {
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// ReadManifest parses <dir>/manifest.yaml.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Indices) == 0 {
		return nil, fmt.Errorf("manifest lists no indices")
	}
	if m.Embedding.Dimensions < 0 {
		return nil, fmt.Errorf("manifest embedding dimensions must be non-negative")
	}
	return &m, nil
}
