package store

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
)

func TestFlatIndex_Search_OrdersByDistance(t *testing.T) {
	// Given: three vectors at increasing angles from the query
	idx, err := NewFlatIndex(2, [][]float32{
		{0, 1},
		{1, 0},
		{1, 1},
	})
	require.NoError(t, err)

	// When: searching with a query along x
	hits, err := idx.Search([]float32{2, 0}, 3)
	require.NoError(t, err)

	// Then: exact match first, orthogonal last
	require.Len(t, hits, 3)
	assert.Equal(t, []int{1, 2, 0}, ordinals(hits))
	assert.InDelta(t, 1.0, hits[0].Similarity(), 1e-6)
	assert.InDelta(t, 0.0, hits[2].Similarity(), 1e-6)
}

func TestFlatIndex_Search_TiesByOrdinal(t *testing.T) {
	// Given: identical vectors at ordinals 3, 1 and 2 relative to the query
	vecs := [][]float32{
		{0, 1},
		{1, 0},
		{1, 0},
		{1, 0},
	}
	idx, err := NewFlatIndex(2, vecs)
	require.NoError(t, err)

	// When: searching
	hits, err := idx.Search([]float32{1, 0}, 3)
	require.NoError(t, err)

	// Then: equal distances come back in ordinal order
	assert.Equal(t, []int{1, 2, 3}, ordinals(hits))
}

func TestFlatIndex_Search_Truncates(t *testing.T) {
	idx, err := NewFlatIndex(2, [][]float32{{1, 0}, {0, 1}, {1, 1}})
	require.NoError(t, err)

	hits, err := idx.Search([]float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = idx.Search([]float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFlatIndex_Search_DimensionMismatch(t *testing.T) {
	idx, err := NewFlatIndex(2, [][]float32{{1, 0}})
	require.NoError(t, err)

	_, err = idx.Search([]float32{1, 0, 0}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, tterrors.ErrDimensionMismatch)
}

func TestNewFlatIndex_RejectsRaggedRows(t *testing.T) {
	_, err := NewFlatIndex(2, [][]float32{{1, 0}, {1}})
	assert.ErrorIs(t, err, tterrors.ErrDimensionMismatch)
}

func TestNewFlatIndex_RejectsNonFiniteRows(t *testing.T) {
	_, err := NewFlatIndex(2, [][]float32{{1, 0}, {float32(math.NaN()), 0}})
	assert.Error(t, err)

	_, err = NewFlatIndex(2, [][]float32{{float32(math.Inf(-1)), 0}})
	assert.Error(t, err)
}

func TestNewHNSWIndex_RejectsNonFiniteRows(t *testing.T) {
	_, err := NewHNSWIndex(2, [][]float32{{1, 0}, {float32(math.NaN()), 0}}, DefaultHNSWConfig())
	assert.Error(t, err)
}

func TestHNSWIndex_FindsNearest(t *testing.T) {
	// Given: a small graph
	vecs := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{0.9, 0.1, 0},
	}
	idx, err := NewHNSWIndex(3, vecs, DefaultHNSWConfig())
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Len())
	assert.Equal(t, "hnsw", idx.Backend())

	// When: searching near the x axis
	hits, err := idx.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)

	// Then: the two x-leaning vectors come back, exact one first
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Ordinal)
	assert.Equal(t, 3, hits[1].Ordinal)
}

func TestHNSWIndex_ExportImport(t *testing.T) {
	vecs := [][]float32{{1, 0}, {0, 1}, {0.7, 0.7}}
	idx, err := NewHNSWIndex(2, vecs, DefaultHNSWConfig())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, idx.Export(&buf))

	loaded, err := ImportHNSWIndex(2, &buf, DefaultHNSWConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Len())

	hits, err := loaded.Search([]float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].Ordinal)
}

func ordinals(hits []Neighbor) []int {
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.Ordinal
	}
	return out
}
