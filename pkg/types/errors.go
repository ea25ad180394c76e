package types

import "errors"

// Domain errors for type validation
var (
	// Search result errors
	ErrInvalidDocumentID     = errors.New("invalid document ID")
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidRelevanceScore = errors.New("relevance score must be between 0 and 1")
	ErrMissingDisplayPath    = errors.New("display path is required")
)
