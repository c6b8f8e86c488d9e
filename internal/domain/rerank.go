package domain

// RerankHit points at one input passage by position and carries its relevance score.
type RerankHit struct {
	Index int
	Score float64
}
