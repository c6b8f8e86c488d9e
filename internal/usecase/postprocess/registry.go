package postprocess

// Registry maps stage names to ready stages.
type Registry map[string]Stage

// NewRegistry registers the tag and language filters, and the rerank stage when a reranker is given.
func NewRegistry(fallbackLanguage string, reranker Reranker, cfg RerankConfig) Registry {
	reg := Registry{
		StageTags:     NewTagFilter(),
		StageLanguage: NewLanguageFilter(fallbackLanguage),
	}
	if reranker != nil {
		reg[StageRerank] = NewRerank(reranker, cfg)
	}
	return reg
}
