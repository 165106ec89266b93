package store

import (
	"context"
	"fmt"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
)

// Lexical backend names accepted by NewLexicalBuilder.
const (
	LexicalMemory = "memory"
	LexicalBleve  = "bleve"
	LexicalSQLite = "sqlite"
	LexicalNone   = "none"
)

// LexicalBuilder builds a ranker over a tokenized corpus.
type LexicalBuilder func(ctx context.Context, corpus [][]string) (LexicalRanker, error)

// probeCorpus is the tiny corpus used to check that a backend works.
var probeCorpus = [][]string{{"probe", "lexical", "backend"}}

// NewLexicalBuilder returns the builder for backend, checking once that
// the backend can actually build and score. "none" returns a nil builder
// and no error. A backend that fails the probe returns a nil builder and
// an error matching ErrLexicalBackendAbsent; callers continue vector-only.
func NewLexicalBuilder(ctx context.Context, backend string, cfg BM25Config) (LexicalBuilder, error) {
	var build LexicalBuilder
	switch backend {
	case "", LexicalMemory:
		build = func(_ context.Context, corpus [][]string) (LexicalRanker, error) {
			return NewBM25Ranker(corpus, cfg), nil
		}
	case LexicalBleve:
		build = func(_ context.Context, corpus [][]string) (LexicalRanker, error) {
			return NewBleveRanker(corpus)
		}
	case LexicalSQLite:
		build = func(ctx context.Context, corpus [][]string) (LexicalRanker, error) {
			return NewSQLiteRanker(ctx, corpus)
		}
	case LexicalNone:
		return nil, nil
	default:
		return nil, tterrors.ValidationError(fmt.Sprintf("unknown lexical backend %q", backend), nil)
	}

	if err := probe(ctx, build); err != nil {
		return nil, tterrors.New(tterrors.ErrCodeLexicalAbsent,
			fmt.Sprintf("lexical backend %q unavailable", backend), err).
			WithDetail("backend", backend)
	}
	return build, nil
}

func probe(ctx context.Context, build LexicalBuilder) error {
	r, err := build(ctx, probeCorpus)
	if err != nil {
		return err
	}
	defer r.Close()

	scores, err := r.Score(ctx, []string{"probe"})
	if err != nil {
		return err
	}
	if len(scores) != 1 || scores[0] <= 0 {
		return fmt.Errorf("probe query did not match")
	}
	return nil
}
