package semantic

// VectorRecord is a single point to store in Qdrant.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any // text, source_id, source_name, source_kind, raw_id, hash
}

// SearchResult is a single vector search hit.
type SearchResult struct {
	ID         string            `json:"id"`
	Score      float32           `json:"score"`
	Text       string            `json:"text"`
	SourceName string            `json:"source_name"`
	RawID      string            `json:"raw_id"`
	Meta       map[string]string `json:"meta"`
}
