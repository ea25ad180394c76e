package searcher

import "math"

// DefaultLexicalK is the BM25 magnitude that normalises to 0.5
const DefaultLexicalK = 50.0

// minLexicalScore keeps normalised scores inside (0, 1] after rounding
const minLexicalScore = 0.001

// NormalizeLexical maps a raw BM25 score into (0, 1]. FTS5 scores are negative
// with stronger matches more negative, so larger magnitudes approach 1:
//
//	normalized = 1 / (1 + |raw| / k)
//
// rounded to three decimals. A non-positive k uses DefaultLexicalK.
func NormalizeLexical(raw, k float64) float64 {
	if k <= 0 {
		k = DefaultLexicalK
	}
	score := round3(1 / (1 + math.Abs(raw)/k))
	if score < minLexicalScore {
		return minLexicalScore
	}
	return score
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
