// Package search implements hybrid retrieval: dense and lexical ranking
// per query variant, Reciprocal Rank Fusion within a variant, and a
// summing merge across variants.
package search

import (
	"fmt"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
const DefaultRRFConstant = 60

// Defaults for per-call options.
const (
	DefaultTopK          = 3
	DefaultNumVariations = 3
	// MaxNumVariations caps the variant set, original query included.
	MaxNumVariations = 10
	// minCandidateK is the floor for automatically sized candidate lists.
	minCandidateK = 50
)

// Options are the per-call retrieval parameters. They are always passed
// explicitly; the engine keeps no hidden retrieval configuration.
type Options struct {
	// TopK is the maximum number of results.
	TopK int
	// UseMultiQuery enables query expansion.
	UseMultiQuery bool
	// NumVariations caps the variant set including the original query.
	NumVariations int
	// UseHybrid adds the lexical signal when a lexical ranker is present.
	UseHybrid bool
	// RRFK is the RRF constant k in 1/(k+rank).
	RRFK int
	// CandidateK is the length of each dense and lexical candidate list.
	// Zero or less means max(10*TopK, 50).
	CandidateK int
}

// DefaultOptions returns the stock retrieval parameters.
func DefaultOptions() Options {
	return Options{
		TopK:          DefaultTopK,
		UseMultiQuery: false,
		NumVariations: DefaultNumVariations,
		UseHybrid:     true,
		RRFK:          DefaultRRFConstant,
	}
}

// Validate rejects parameters retrieval cannot honour.
func (o Options) Validate() error {
	if o.TopK < 0 {
		return tterrors.ValidationError(fmt.Sprintf("top_k must be >= 0, got %d", o.TopK), nil)
	}
	if o.RRFK <= 0 {
		return tterrors.ValidationError(fmt.Sprintf("rrf_k must be > 0, got %d", o.RRFK), nil)
	}
	if o.NumVariations < 0 || o.NumVariations > MaxNumVariations {
		return tterrors.ValidationError(
			fmt.Sprintf("num_query_variations must be between 0 and %d, got %d", MaxNumVariations, o.NumVariations), nil)
	}
	return nil
}

// candidateK resolves the candidate list length.
func (o Options) candidateK() int {
	if o.CandidateK > 0 {
		return o.CandidateK
	}
	return max(10*o.TopK, minCandidateK)
}

// maxVariants is the variant cap including the original query.
func (o Options) maxVariants() int {
	if !o.UseMultiQuery || o.NumVariations <= 1 {
		return 1
	}
	return o.NumVariations
}
