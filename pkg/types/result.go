package types

// SearchResult represents a single ranked document returned by a search
type SearchResult struct {
	// Identification
	DocumentID  int64
	DisplayPath string // <collection>/<path>, unique per document
	Rank        int    // Position in result set (1-based)

	// Scoring
	Score  float64 // Final score in [0, 1]; its meaning depends on the search mode
	Scores Scores

	// Metadata
	Title      string
	Collection string
	Hash       string // Content fingerprint
	Snippet    string // Matching excerpt, when the search produced one
	ChunkPos   int    // Start offset of the best matching chunk, -1 when unknown
	Context    string // Path context annotation covering DisplayPath
}

// Scores holds the per-stage scores that produced a result. Stages that did
// not run, or did not see the document, are zero.
type Scores struct {
	Lexical float64 `json:"lexical,omitempty"` // Normalised BM25 score
	Vector  float64 `json:"vector,omitempty"`  // Cosine similarity of the best chunk
	Fused   float64 `json:"fused,omitempty"`   // Reciprocal Rank Fusion score
	Rerank  float64 `json:"rerank,omitempty"`  // Relevance judgment score
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.DocumentID <= 0 {
		return ErrInvalidDocumentID
	}

	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.Score < 0 || sr.Score > 1 {
		return ErrInvalidRelevanceScore
	}

	if sr.DisplayPath == "" {
		return ErrMissingDisplayPath
	}

	return nil
}
