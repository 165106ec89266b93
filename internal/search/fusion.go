package search

import (
	"cmp"
	"slices"
)

// FusedHit is one chunk after per-variant fusion.
type FusedHit struct {
	Ordinal   int
	Score     float64
	DenseRank int     // 1-based, 0 if absent from the dense list
	LexRank   int     // 1-based, 0 if absent from the lexical list
	DenseSim  float32 // cosine similarity when in the dense list
}

// RankedList is one signal's ranking for one variant, best first.
type RankedList []int

// FuseRRF combines a dense and a lexical ranking with Reciprocal Rank
// Fusion: each list contributes 1/(k+rank) for every ordinal it holds.
// Either list may be empty; with no lexical list the result is the dense
// ranking. Output is ordered by descending score, ties by ascending
// ordinal. sims, when non-nil, is parallel to dense.
func FuseRRF(dense RankedList, sims []float32, lexical RankedList, k int) []FusedHit {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	if len(dense) == 0 && len(lexical) == 0 {
		return []FusedHit{}
	}

	byOrd := make(map[int]*FusedHit, len(dense)+len(lexical))
	get := func(ord int) *FusedHit {
		h, ok := byOrd[ord]
		if !ok {
			h = &FusedHit{Ordinal: ord}
			byOrd[ord] = h
		}
		return h
	}

	for i, ord := range dense {
		h := get(ord)
		if h.DenseRank != 0 {
			continue
		}
		h.DenseRank = i + 1
		h.Score += 1 / float64(k+i+1)
		if i < len(sims) {
			h.DenseSim = sims[i]
		}
	}
	for i, ord := range lexical {
		h := get(ord)
		if h.LexRank != 0 {
			continue
		}
		h.LexRank = i + 1
		h.Score += 1 / float64(k+i+1)
	}

	out := make([]FusedHit, 0, len(byOrd))
	for _, h := range byOrd {
		out = append(out, *h)
	}
	slices.SortFunc(out, func(a, b FusedHit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Ordinal, b.Ordinal)
	})
	return out
}

// topLexical returns up to n ordinals with positive score, by descending
// score, ties by ascending ordinal.
func topLexical(scores []float64, n int) RankedList {
	type scored struct {
		ord   int
		score float64
	}
	hits := make([]scored, 0, len(scores))
	for ord, s := range scores {
		if s > 0 {
			hits = append(hits, scored{ord, s})
		}
	}
	slices.SortFunc(hits, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.ord, b.ord)
	})
	if n >= 0 && len(hits) > n {
		hits = hits[:n]
	}
	out := make(RankedList, len(hits))
	for i, h := range hits {
		out[i] = h.ord
	}
	return out
}
