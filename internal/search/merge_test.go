package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hit(ord int, score float64) FusedHit {
	return FusedHit{Ordinal: ord, Score: score, DenseRank: 1, DenseSim: 0.5}
}

func TestMergeVariants_SumsAcrossVariants(t *testing.T) {
	perVariant := [][]FusedHit{
		{hit(1, 0.02), hit(2, 0.01)},
		{hit(2, 0.02), hit(3, 0.015)},
	}

	merged := MergeVariants(perVariant)

	require.Len(t, merged, 3)
	assert.Equal(t, 2, merged[0].Ordinal)
	assert.InDelta(t, 0.03, merged[0].Score, 1e-12)
	assert.Equal(t, 2, merged[0].Variants)
	assert.Equal(t, 0, merged[0].FirstVariant)
	assert.Equal(t, 1, merged[1].Ordinal)
	assert.Equal(t, 3, merged[2].Ordinal)
	assert.Equal(t, 1, merged[2].FirstVariant)
}

func TestMergeVariants_TieBreaks(t *testing.T) {
	// Given: equal scores from different variants and ordinals
	perVariant := [][]FusedHit{
		{hit(9, 0.01)},
		{hit(4, 0.01), hit(2, 0.01)},
	}

	merged := MergeVariants(perVariant)

	// Then: first-seen variant wins, then the lower ordinal
	require.Len(t, merged, 3)
	assert.Equal(t, []int{9, 2, 4}, []int{merged[0].Ordinal, merged[1].Ordinal, merged[2].Ordinal})
}

func TestMergeVariants_DroppedVariantsIgnored(t *testing.T) {
	merged := MergeVariants([][]FusedHit{{hit(1, 0.01)}, nil, {hit(1, 0.01)}})
	require.Len(t, merged, 1)
	assert.Equal(t, 2, merged[0].Variants)
	assert.InDelta(t, 0.02, merged[0].Score, 1e-12)
}

func TestMergeVariants_BestSimIgnoresLexicalOnly(t *testing.T) {
	merged := MergeVariants([][]FusedHit{
		{{Ordinal: 1, Score: 0.01, LexRank: 1}},
		{{Ordinal: 1, Score: 0.01, DenseRank: 3, DenseSim: 0.4}},
		{{Ordinal: 1, Score: 0.01, DenseRank: 1, DenseSim: 0.7}},
	})
	require.Len(t, merged, 1)
	assert.InDelta(t, 0.7, merged[0].BestSim, 1e-6)
}

func TestMergeVariants_OrderIndependentOfCompletion(t *testing.T) {
	a := []FusedHit{hit(1, 0.016), hit(2, 0.015)}
	b := []FusedHit{hit(3, 0.016), hit(1, 0.015)}

	// Variant slots are fixed by position, not by finish order, so the
	// same slots filled in any order give the same merge.
	slots1 := make([][]FusedHit, 2)
	slots1[0], slots1[1] = a, b
	slots2 := make([][]FusedHit, 2)
	slots2[1], slots2[0] = b, a

	assert.Equal(t, MergeVariants(slots1), MergeVariants(slots2))
}

func TestMergeVariants_TwoVariantsBeatOne(t *testing.T) {
	// Given: chunk 1 surfaced by 2 of 3 variants and chunk 2 by exactly one,
	// at the same per-variant rank
	for rank := 1; rank <= 50; rank++ {
		s := 1 / float64(60+rank)
		perVariant := [][]FusedHit{
			{hit(1, s)},
			{hit(2, s)},
			{hit(1, s)},
		}

		merged := MergeVariants(perVariant)

		require.Len(t, merged, 2)
		assert.Equal(t, 1, merged[0].Ordinal)
		assert.GreaterOrEqual(t, merged[0].Score, merged[1].Score)
	}
}

func TestMergeVariants_Empty(t *testing.T) {
	assert.Empty(t, MergeVariants(nil))
	assert.Empty(t, MergeVariants([][]FusedHit{nil, nil}))
}

func TestResult_Relevance(t *testing.T) {
	tests := []struct {
		sim  float32
		want string
	}{
		{0.95, RelevanceHigh},
		{0.81, RelevanceHigh},
		{0.8, RelevanceMedium},
		{0.61, RelevanceMedium},
		{0.6, RelevanceLow},
		{0, RelevanceLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Result{Similarity: tt.sim}.Relevance(), "similarity %v", tt.sim)
	}
}
