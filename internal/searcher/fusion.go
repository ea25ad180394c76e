package searcher

import "sort"

// DefaultRRFK is the standard Reciprocal Rank Fusion damping constant
const DefaultRRFK = 60.0

// Candidate is one entry of a ranked list, best first
type Candidate struct {
	ID    string
	Score float64 // Source score, carried for display only
}

// Fused is a candidate after Reciprocal Rank Fusion
type Fused struct {
	ID    string
	Score float64
	Ranks []int // 1-based rank in each input list, 0 when absent
}

// BestRank returns the best (lowest) rank the candidate had in any list
func (f Fused) BestRank() int {
	best := 0
	for _, r := range f.Ranks {
		if r > 0 && (best == 0 || r < best) {
			best = r
		}
	}
	return best
}

// FuseRRF merges ranked lists with Reciprocal Rank Fusion:
//
//	score(d) = Σ 1 / (k + rank(d))
//
// over every list containing d, with 1-based ranks. The result is ordered by
// descending score, then by the better best rank, then by ID. A repeated ID
// within one list counts at its first position only. A non-positive k uses
// DefaultRRFK.
func FuseRRF(k float64, lists ...[]Candidate) []Fused {
	if k <= 0 {
		k = DefaultRRFK
	}

	index := make(map[string]int)
	fused := make([]Fused, 0)
	for li, list := range lists {
		for pos, c := range list {
			i, ok := index[c.ID]
			if !ok {
				i = len(fused)
				index[c.ID] = i
				fused = append(fused, Fused{ID: c.ID, Ranks: make([]int, len(lists))})
			}
			if fused[i].Ranks[li] != 0 {
				continue
			}
			rank := pos + 1
			fused[i].Ranks[li] = rank
			fused[i].Score += 1.0 / (k + float64(rank))
		}
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		bi, bj := fused[i].BestRank(), fused[j].BestRank()
		if bi != bj {
			return bi < bj
		}
		return fused[i].ID < fused[j].ID
	})
	return fused
}
