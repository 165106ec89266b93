package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bjornefisk/StudyTutor/internal/knowledge"
	"github.com/bjornefisk/StudyTutor/internal/search"
)

// SnippetLines is how many lines of chunk text the text view shows.
const SnippetLines = 3

// ResultsRenderer displays retrieval results.
type ResultsRenderer struct {
	out      io.Writer
	styles   Styles
	fullText bool
}

// NewResultsRenderer creates a results renderer. With fullText the whole
// chunk is printed instead of a snippet.
func NewResultsRenderer(out io.Writer, noColor, fullText bool) *ResultsRenderer {
	return &ResultsRenderer{out: out, styles: GetStyles(noColor), fullText: fullText}
}

// Render prints results in rank order, followed by the knowledge article
// when there is one.
func (r *ResultsRenderer) Render(query string, results []search.Result, article *knowledge.Article) error {
	if len(results) == 0 && article == nil {
		_, _ = fmt.Fprintf(r.out, "No results found for %q\n", query)
		return nil
	}

	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render(fmt.Sprintf("Found %d results for %q:", len(results), query)))
	for i, res := range results {
		_, _ = fmt.Fprintf(r.out, "%d. %s %s\n",
			i+1,
			r.styles.Source.Render(location(res)),
			r.styles.Score.Render(fmt.Sprintf("(score: %.4f, %s)", res.Score, res.Relevance())))

		lines := strings.Split(strings.TrimSpace(res.Chunk.Text), "\n")
		if !r.fullText && len(lines) > SnippetLines {
			lines = append(lines[:SnippetLines], "...")
		}
		for _, line := range lines {
			_, _ = fmt.Fprintf(r.out, "   %s\n", line)
		}
		_, _ = fmt.Fprintln(r.out)
	}

	if article != nil {
		_, _ = fmt.Fprintf(r.out, "%s\n", r.styles.Header.Render(article.Source()))
		_, _ = fmt.Fprintf(r.out, "   %s\n", strings.TrimSpace(article.Extract))
		_, _ = fmt.Fprintf(r.out, "   %s\n\n", r.styles.Label.Render(article.URL+" ("+article.License+")"))
	}
	return nil
}

// jsonResult is the JSON shape of one result.
type jsonResult struct {
	Rank       int     `json:"rank"`
	Score      float64 `json:"score"`
	Relevance  string  `json:"relevance"`
	Source     string  `json:"source"`
	Page       int     `json:"page"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
}

type jsonResults struct {
	Query     string             `json:"query"`
	Results   []jsonResult       `json:"results"`
	Knowledge *knowledge.Article `json:"knowledge,omitempty"`
}

// RenderJSON outputs results as JSON.
func (r *ResultsRenderer) RenderJSON(query string, results []search.Result, article *knowledge.Article) error {
	out := jsonResults{Query: query, Results: make([]jsonResult, 0, len(results)), Knowledge: article}
	for i, res := range results {
		out.Results = append(out.Results, jsonResult{
			Rank:       i + 1,
			Score:      res.Score,
			Relevance:  res.Relevance(),
			Source:     res.Chunk.Source,
			Page:       res.Chunk.Page,
			ChunkIndex: res.Chunk.ChunkIndex,
			Text:       res.Chunk.Text,
		})
	}
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// location formats "source, page N".
func location(res search.Result) string {
	return fmt.Sprintf("%s, page %d", res.Chunk.Source, res.Chunk.Page)
}
