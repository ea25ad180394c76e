package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchResult_Validate(t *testing.T) {
	valid := func() SearchResult {
		return SearchResult{DocumentID: 1, DisplayPath: "notes/a.md", Rank: 1, Score: 0.5}
	}

	tests := []struct {
		name   string
		mutate func(*SearchResult)
		want   error
	}{
		{"valid", func(*SearchResult) {}, nil},
		{"score of one", func(r *SearchResult) { r.Score = 1 }, nil},
		{"missing document", func(r *SearchResult) { r.DocumentID = 0 }, ErrInvalidDocumentID},
		{"zero rank", func(r *SearchResult) { r.Rank = 0 }, ErrInvalidRank},
		{"score above one", func(r *SearchResult) { r.Score = 1.2 }, ErrInvalidRelevanceScore},
		{"negative score", func(r *SearchResult) { r.Score = -0.1 }, ErrInvalidRelevanceScore},
		{"no display path", func(r *SearchResult) { r.DisplayPath = "" }, ErrMissingDisplayPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(&r)
			err := r.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
