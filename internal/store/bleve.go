package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/mapping"
)

// corpusAnalyzerName splits the pre-tokenized corpus on whitespace only, so
// bleve sees exactly the tokens ingestion produced.
const corpusAnalyzerName = "pretokenized"

// BleveRanker scores with an in-memory bleve index built over the
// tokenized corpus.
type BleveRanker struct {
	index bleve.Index
	count int
}

var _ LexicalRanker = (*BleveRanker)(nil)

type bleveDoc struct {
	Content string `json:"content"`
}

func newBleveMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(corpusAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     whitespace.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}
	m.DefaultAnalyzer = corpusAnalyzerName
	return m, nil
}

// NewBleveRanker indexes corpus in memory; document IDs are ordinals.
func NewBleveRanker(corpus [][]string) (*BleveRanker, error) {
	m, err := newBleveMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}

	batch := idx.NewBatch()
	for ord, tokens := range corpus {
		if err := batch.Index(strconv.Itoa(ord), bleveDoc{Content: strings.Join(tokens, " ")}); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("index chunk %d: %w", ord, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("execute batch: %w", err)
	}

	return &BleveRanker{index: idx, count: len(corpus)}, nil
}

// Score implements LexicalRanker. Terms are OR-ed.
func (r *BleveRanker) Score(ctx context.Context, queryTokens []string) ([]float64, error) {
	scores := make([]float64, r.count)
	terms := uniqueTerms(queryTokens)
	if len(terms) == 0 || r.count == 0 {
		return scores, nil
	}

	q := bleve.NewMatchQuery(strings.Join(terms, " "))
	q.SetField("content")
	req := bleve.NewSearchRequest(q)
	req.Size = r.count

	res, err := r.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}
	for _, hit := range res.Hits {
		ord, err := strconv.Atoi(hit.ID)
		if err != nil || ord < 0 || ord >= r.count {
			continue
		}
		scores[ord] = hit.Score
	}
	return scores, nil
}

// Name returns "bleve".
func (r *BleveRanker) Name() string { return "bleve" }

// Close releases the bleve index.
func (r *BleveRanker) Close() error { return r.index.Close() }
