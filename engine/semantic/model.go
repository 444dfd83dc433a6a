// Package semantic owns the vector collection: a Qdrant backend over gRPC and
// an embedded chromem-go backend with the same method set.
package semantic

// Payload keys stored with every point.
const (
	PayloadText   = "text"
	PayloadSource = "source"
)

// SearchResult is a single similarity hit.
type SearchResult struct {
	ID     string  `json:"id"`
	Score  float32 `json:"score"`
	Text   string  `json:"text"`
	Source string  `json:"source"`
}

// VectorRecord is a chunk and its embedding. An empty ID is replaced by a
// random UUID on upsert.
type VectorRecord struct {
	ID     string
	Vector []float32
	Text   string
	Source string
}
