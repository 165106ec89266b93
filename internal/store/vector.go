package store

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// VectorIndex answers nearest-neighbour queries over the chunk embeddings.
// Results are ordered by ascending distance, ties by ascending ordinal.
type VectorIndex interface {
	Search(query []float32, k int) ([]Neighbor, error)
	Len() int
	Dimensions() int
	Backend() string
}

// FlatIndex is an exact cosine index. Every query scans all vectors, which
// keeps ranking fully deterministic.
type FlatIndex struct {
	dim     int
	vectors [][]float32 // L2-normalised copies
}

var _ VectorIndex = (*FlatIndex)(nil)

// NewFlatIndex copies and normalises vectors. All rows must have length dim.
func NewFlatIndex(dim int, vectors [][]float32) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}
	rows := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d: %w", i, dimensionMismatch(dim, len(v)))
		}
		if !finite(v) {
			return nil, fmt.Errorf("vector %d has a NaN or infinite value", i)
		}
		rows[i] = normalized(v)
	}
	return &FlatIndex{dim: dim, vectors: rows}, nil
}

// Search returns the k nearest chunks to query.
func (f *FlatIndex) Search(query []float32, k int) ([]Neighbor, error) {
	if len(query) != f.dim {
		return nil, dimensionMismatch(f.dim, len(query))
	}
	if k <= 0 || len(f.vectors) == 0 {
		return []Neighbor{}, nil
	}

	q := normalized(query)
	hits := make([]Neighbor, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = Neighbor{Ordinal: i, Distance: 1 - dot(q, v)}
	}
	sortNeighbors(hits)

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of vectors.
func (f *FlatIndex) Len() int { return len(f.vectors) }

// Dimensions returns the vector dimension.
func (f *FlatIndex) Dimensions() int { return f.dim }

// Backend returns "flat".
func (f *FlatIndex) Backend() string { return "flat" }

func sortNeighbors(hits []Neighbor) {
	slices.SortFunc(hits, func(a, b Neighbor) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Ordinal, b.Ordinal)
	})
}

// finite reports whether v holds no NaN or infinite value.
func finite(v []float32) bool {
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return false
		}
	}
	return true
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// normalized returns an L2-normalised copy of v. Zero vectors stay zero.
func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	inv := float32(1 / math.Sqrt(sum))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}
