package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/bjornefisk/StudyTutor/internal/search"
)

// FormatResults formats retrieved chunks as markdown.
func FormatResults(query string, results []search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No study material found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Study Material for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d chunk", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		formatResult(&sb, i+1, r)
	}
	return sb.String()
}

func formatResult(sb *strings.Builder, num int, r search.Result) {
	fmt.Fprintf(sb, "### %d. %s, page %d (score: %.4f, relevance: %s)\n\n",
		num, sourceName(r.Chunk.Source), r.Chunk.Page, r.Score, r.Relevance())
	sb.WriteString(strings.TrimSpace(r.Chunk.Text))
	sb.WriteString("\n\n---\n\n")
}

// FormatStatus renders the index status as markdown.
func FormatStatus(st search.Status) string {
	var sb strings.Builder
	sb.WriteString("## Index Status\n\n")
	if !st.Ready {
		sb.WriteString(search.NotReadyMessage)
		sb.WriteString("\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "- **Mode:** %s\n", st.Mode)
	fmt.Fprintf(&sb, "- **Chunks:** %d\n", st.Chunks)
	fmt.Fprintf(&sb, "- **Lexical:** %s\n", st.LexicalBackend)
	fmt.Fprintf(&sb, "- **Embedder:** %s\n", st.Embedder)
	fmt.Fprintf(&sb, "- **Expansion:** %s\n", st.Expansion)
	if !st.LoadedAt.IsZero() {
		fmt.Fprintf(&sb, "- **Loaded:** %s\n", st.LoadedAt.Format(time.RFC3339))
	}
	return sb.String()
}

// sourceName falls back to a placeholder for chunks with no source.
func sourceName(s string) string {
	if s == "" {
		return "(unknown source)"
	}
	return s
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// ToRetrieveOutput converts results to the structured tool output.
func ToRetrieveOutput(query string, mode search.Mode, results []search.Result) RetrieveOutput {
	out := RetrieveOutput{
		Query:   query,
		Mode:    string(mode),
		Results: make([]RetrievedChunk, 0, len(results)),
	}
	for i, r := range results {
		out.Results = append(out.Results, RetrievedChunk{
			Rank:       i + 1,
			Score:      r.Score,
			Source:     r.Chunk.Source,
			Page:       r.Chunk.Page,
			ChunkIndex: r.Chunk.ChunkIndex,
			Text:       r.Chunk.Text,
			Relevance:  r.Relevance(),
		})
	}
	return out
}

// ToIndexStatusOutput converts the engine status to the tool output.
func ToIndexStatusOutput(st search.Status) *IndexStatusOutput {
	out := &IndexStatusOutput{
		Ready:          st.Ready,
		Mode:           string(st.Mode),
		Chunks:         st.Chunks,
		IndexDir:       st.IndexDir,
		VectorBackend:  st.VectorBackend,
		LexicalBackend: st.LexicalBackend,
		LexicalError:   st.LexicalError,
		Embedder:       st.Embedder,
		Expansion:      st.Expansion,
	}
	if !st.LoadedAt.IsZero() {
		out.LoadedAt = st.LoadedAt.Format(time.RFC3339)
	}
	return out
}
