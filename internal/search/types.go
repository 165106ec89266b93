package search

import (
	"time"

	"github.com/bjornefisk/StudyTutor/internal/store"
)

// Result is one retrieved chunk.
type Result struct {
	// Score is the fused score summed over variants.
	Score   float64
	Ordinal int
	Chunk   store.Chunk
	// Variants counts the query variants that surfaced the chunk.
	Variants int
	// Similarity is the best dense cosine similarity seen for the chunk,
	// 0 when only the lexical signal found it.
	Similarity float32
}

// Relevance labels for a result's dense similarity.
const (
	RelevanceHigh   = "high"
	RelevanceMedium = "medium"
	RelevanceLow    = "low"
)

// Relevance buckets Similarity: above 0.8 is high, above 0.6 medium.
func (r Result) Relevance() string {
	switch {
	case r.Similarity > 0.8:
		return RelevanceHigh
	case r.Similarity > 0.6:
		return RelevanceMedium
	default:
		return RelevanceLow
	}
}

// Outcomes reported to a Recorder.
const (
	OutcomeOK          = "ok"
	OutcomeEmpty       = "empty"
	OutcomeNotReady    = "not_ready"
	OutcomeUnavailable = "unavailable"
	OutcomeInvalid     = "invalid"
)

// Reasons a variant is dropped.
const (
	DropEmbedFailed = "embed_failed"
	DropDeadline    = "deadline"
	DropSearch      = "search_failed"
)

// Recorder receives retrieval metrics. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveRetrieve(outcome string, d time.Duration, variants int)
	// ObserveQuery sees every query that reached an index.
	ObserveQuery(query string, results int, d time.Duration)
	VariantDropped(reason string)
	IndexState(chunks int, lexical bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRetrieve(string, time.Duration, int) {}
func (nopRecorder) ObserveQuery(string, int, time.Duration)    {}
func (nopRecorder) VariantDropped(string)                      {}
func (nopRecorder) IndexState(int, bool)                       {}
