package store

import (
	"bufio"
	"fmt"
	"io"

	"github.com/coder/hnsw"
)

// HNSWConfig tunes the approximate index.
type HNSWConfig struct {
	M        int // max neighbours per node (default 16)
	EfSearch int // search candidate list size (default 64)
}

// DefaultHNSWConfig returns defaults suited to course-sized corpora.
func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{M: 16, EfSearch: 64}
}

// HNSWIndex is an approximate cosine index backed by coder/hnsw. Keys are
// chunk ordinals.
type HNSWIndex struct {
	dim   int
	graph *hnsw.Graph[uint64]
}

var _ VectorIndex = (*HNSWIndex)(nil)

func newGraph(cfg HNSWConfig) *hnsw.Graph[uint64] {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 64
	}
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// NewHNSWIndex builds a graph over vectors.
func NewHNSWIndex(dim int, vectors [][]float32, cfg HNSWConfig) (*HNSWIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}
	g := newGraph(cfg)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d: %w", i, dimensionMismatch(dim, len(v)))
		}
		if !finite(v) {
			return nil, fmt.Errorf("vector %d has a NaN or infinite value", i)
		}
		g.Add(hnsw.MakeNode(uint64(i), normalized(v)))
	}
	return &HNSWIndex{dim: dim, graph: g}, nil
}

// ImportHNSWIndex reads a graph previously written by Export. The caller
// checks that Len matches the metadata count.
func ImportHNSWIndex(dim int, r io.Reader, cfg HNSWConfig) (*HNSWIndex, error) {
	g := newGraph(cfg)
	// Import needs an io.ByteReader.
	if err := g.Import(bufio.NewReader(r)); err != nil {
		return nil, fmt.Errorf("import graph: %w", err)
	}
	return &HNSWIndex{dim: dim, graph: g}, nil
}

// Export writes the graph so a later load can skip rebuilding it.
func (h *HNSWIndex) Export(w io.Writer) error {
	return h.graph.Export(w)
}

// Search returns up to k approximate nearest neighbours, re-sorted by
// exact distance and ordinal so equal distances order deterministically.
func (h *HNSWIndex) Search(query []float32, k int) ([]Neighbor, error) {
	if len(query) != h.dim {
		return nil, dimensionMismatch(h.dim, len(query))
	}
	n := h.graph.Len()
	if k <= 0 || n == 0 {
		return []Neighbor{}, nil
	}
	if k > n {
		k = n
	}

	q := normalized(query)
	nodes := h.graph.Search(q, k)
	hits := make([]Neighbor, 0, len(nodes))
	for _, node := range nodes {
		hits = append(hits, Neighbor{
			Ordinal:  int(node.Key),
			Distance: h.graph.Distance(q, node.Value),
		})
	}
	sortNeighbors(hits)
	return hits, nil
}

// Len returns the number of nodes in the graph.
func (h *HNSWIndex) Len() int { return h.graph.Len() }

// Dimensions returns the vector dimension.
func (h *HNSWIndex) Dimensions() int { return h.dim }

// Backend returns "hnsw".
func (h *HNSWIndex) Backend() string { return "hnsw" }
