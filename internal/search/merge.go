package search

import (
	"cmp"
	"slices"
)

// MergedHit is one chunk after the cross-variant merge.
type MergedHit struct {
	Ordinal int
	// Score is the sum of the chunk's fused scores over every variant.
	Score float64
	// FirstVariant is the lowest variant index that surfaced the chunk.
	FirstVariant int
	// Variants counts the variants that surfaced the chunk.
	Variants int
	// BestSim is the highest dense similarity seen, 0 if only lexical.
	BestSim float32
}

// MergeVariants sums fused scores per ordinal across variants. perVariant
// is indexed by variant position, original query first; a nil entry is a
// dropped variant. The result is ordered by descending score, then by the
// variant that first surfaced the chunk, then by ascending ordinal.
//
// The reduction does not depend on the order variants finished in.
func MergeVariants(perVariant [][]FusedHit) []MergedHit {
	byOrd := make(map[int]*MergedHit)
	for vi, hits := range perVariant {
		for _, h := range hits {
			m, ok := byOrd[h.Ordinal]
			if !ok {
				m = &MergedHit{Ordinal: h.Ordinal, FirstVariant: vi}
				byOrd[h.Ordinal] = m
			}
			m.Score += h.Score
			m.Variants++
			if vi < m.FirstVariant {
				m.FirstVariant = vi
			}
			if h.DenseRank > 0 && h.DenseSim > m.BestSim {
				m.BestSim = h.DenseSim
			}
		}
	}

	out := make([]MergedHit, 0, len(byOrd))
	for _, m := range byOrd {
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b MergedHit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.FirstVariant, b.FirstVariant); c != 0 {
			return c
		}
		return cmp.Compare(a.Ordinal, b.Ordinal)
	})
	return out
}
