package domain

// DefaultKeyPrefix namespaces keys in the shared store when storage.key_prefix is unset.
const DefaultKeyPrefix = "supportbot:"

// Defaults observed by the engine when neither config nor caller override them.
const (
	DefaultTopK             = 10
	DefaultSimilarityTopK   = 10
	DefaultLanguage         = "en"
	DefaultFallbackLanguage = "python"
	DefaultRRFK             = 60
)

// EmbeddingDefaults describes the query embedding model the indices were built with.
type EmbeddingDefaults struct {
	Model      string
	Dimensions int
}

// DefaultEmbedding returns the embedding model used by the ingestion pipeline.
func DefaultEmbedding() EmbeddingDefaults {
	return EmbeddingDefaults{
		Model:      "text-embedding-3-small",
		Dimensions: 512,
	}
}
