package knowledge

// SearchQuery is one hybrid retrieval request against the knowledge base.
// Vector drives the similarity leg, Terms the keyword leg, Entities the
// graph-proximity leg; empty legs are skipped.
type SearchQuery struct {
	BusinessID string
	Vector     []float32
	Terms      []string
	Entities   []string
	TopK       int
}
