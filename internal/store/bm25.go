package store

import (
	"context"
	"math"
)

// LexicalRanker scores a tokenized query against the tokenized corpus.
// Score returns one value per ordinal; 0 means the chunk shares no term
// with the query. Implementations are safe for concurrent use.
type LexicalRanker interface {
	Score(ctx context.Context, queryTokens []string) ([]float64, error)
	Name() string
	Close() error
}

// BM25Ranker is an in-memory Okapi BM25 ranker.
type BM25Ranker struct {
	cfg      BM25Config
	docLens  []float64
	avgLen   float64
	postings map[string][]posting // term -> chunks containing it
}

type posting struct {
	ordinal int
	tf      float64
}

var _ LexicalRanker = (*BM25Ranker)(nil)

// NewBM25Ranker builds postings for corpus, one token list per ordinal.
func NewBM25Ranker(corpus [][]string, cfg BM25Config) *BM25Ranker {
	r := &BM25Ranker{
		cfg:      cfg,
		docLens:  make([]float64, len(corpus)),
		postings: make(map[string][]posting),
	}

	var total float64
	for ord, tokens := range corpus {
		r.docLens[ord] = float64(len(tokens))
		total += float64(len(tokens))

		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for term, n := range tf {
			r.postings[term] = append(r.postings[term], posting{ordinal: ord, tf: float64(n)})
		}
	}
	if len(corpus) > 0 {
		r.avgLen = total / float64(len(corpus))
	}
	return r
}

// Score implements LexicalRanker. Repeated query terms count once.
func (r *BM25Ranker) Score(ctx context.Context, queryTokens []string) ([]float64, error) {
	scores := make([]float64, len(r.docLens))
	n := float64(len(r.docLens))
	if n == 0 {
		return scores, nil
	}

	k1, b := r.cfg.K1, r.cfg.B
	for _, term := range uniqueTerms(queryTokens) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		plist := r.postings[term]
		if len(plist) == 0 {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))

		for _, p := range plist {
			norm := 1 - b
			if r.avgLen > 0 {
				norm += b * r.docLens[p.ordinal] / r.avgLen
			}
			scores[p.ordinal] += idf * (p.tf * (k1 + 1)) / (p.tf + k1*norm)
		}
	}
	return scores, nil
}

// Name returns "memory".
func (r *BM25Ranker) Name() string { return "memory" }

// Close is a no-op.
func (r *BM25Ranker) Close() error { return nil }
