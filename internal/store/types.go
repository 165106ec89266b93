// Package store holds the immutable corpus index: chunk metadata, the
// vector index and the optional tokenized corpus with its lexical ranker.
//
// A loaded Index is read-only. Replacing it means loading a new one and
// swapping the handle; nothing patches an Index in place.
package store

import (
	"fmt"
	"time"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
)

// Bundle file names inside an index directory.
const (
	MetadataFile = "metadata.jsonl"
	VectorsFile  = "vectors.bin"
	ConfigFile   = "config.json"
	TokensFile   = "tokens.jsonl"
	GraphFile    = "hnsw.graph"
	LockFile     = ".lock"
)

// Chunk is one unit of ingested text. Its ordinal (position in the
// metadata array) is its identity within a loaded index.
type Chunk struct {
	ID         string `json:"id,omitempty"`
	Source     string `json:"source"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// Neighbor is one dense search hit.
type Neighbor struct {
	Ordinal  int
	Distance float32 // cosine distance, 0 = identical direction
}

// Similarity converts the cosine distance back to cosine similarity.
func (n Neighbor) Similarity() float32 {
	return 1 - n.Distance
}

// IndexInfo is the content of config.json written by ingestion.
type IndexInfo struct {
	EmbedBackend string    `json:"embed_backend"`
	EmbedModel   string    `json:"embed_model"`
	Dim          int       `json:"dim"`
	Count        int       `json:"count,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// BM25Config tunes Okapi BM25 scoring.
type BM25Config struct {
	// K1 controls term frequency saturation (typical: 1.2-2.0).
	K1 float64
	// B controls document length normalization (0-1, typical: 0.75).
	B float64
}

// DefaultBM25Config returns the standard BM25 parameters.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1: 1.2,
		B:  0.75,
	}
}

// dimensionMismatch builds the error returned when a query vector does not
// match the index dimension.
func dimensionMismatch(expected, got int) error {
	return tterrors.New(tterrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: index has %d, query has %d", expected, got), nil).
		WithDetail("expected", fmt.Sprint(expected)).
		WithDetail("got", fmt.Sprint(got))
}
