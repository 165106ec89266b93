package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/bjornefisk/StudyTutor/internal/search"
)

// StatusInfo is the engine status plus on-disk bundle sizes.
type StatusInfo struct {
	search.Status

	// Storage sizes in bytes.
	MetadataSize int64 `json:"metadata_size"`
	VectorSize   int64 `json:"vector_size"`
	TokensSize   int64 `json:"tokens_size"`
	GraphSize    int64 `json:"graph_size"`
	TotalSize    int64 `json:"total_size"`

	Watcher string `json:"watcher,omitempty"`
}

// StatusRenderer displays engine status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render displays status info to the terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index Status"))

	_, _ = fmt.Fprintf(r.out, "  Mode:         %s\n", r.renderMode(info.Mode))
	if info.IndexDir != "" {
		_, _ = fmt.Fprintf(r.out, "  Directory:    %s\n", info.IndexDir)
	}
	if !info.Ready {
		_, _ = fmt.Fprintf(r.out, "\n  %s\n", r.styles.Warning.Render(search.NotReadyMessage))
		return nil
	}
	_, _ = fmt.Fprintf(r.out, "  Chunks:       %d\n", info.Chunks)
	if !info.LoadedAt.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Loaded:       %s\n", formatTime(info.LoadedAt))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Retrieval:")
	_, _ = fmt.Fprintf(r.out, "    Vectors:    %s\n", info.VectorBackend)
	_, _ = fmt.Fprintf(r.out, "    Lexical:    %s\n", info.LexicalBackend)
	if info.LexicalError != "" {
		_, _ = fmt.Fprintf(r.out, "                %s\n", r.styles.Warning.Render(info.LexicalError))
	}
	_, _ = fmt.Fprintf(r.out, "    Embedder:   %s\n", info.Embedder)
	_, _ = fmt.Fprintf(r.out, "    Expansion:  %s\n", info.Expansion)
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Storage:")
	_, _ = fmt.Fprintf(r.out, "    Metadata:   %s\n", FormatBytes(info.MetadataSize))
	_, _ = fmt.Fprintf(r.out, "    Vectors:    %s\n", FormatBytes(info.VectorSize))
	if info.TokensSize > 0 {
		_, _ = fmt.Fprintf(r.out, "    Tokens:     %s\n", FormatBytes(info.TokensSize))
	}
	if info.GraphSize > 0 {
		_, _ = fmt.Fprintf(r.out, "    Graph:      %s\n", FormatBytes(info.GraphSize))
	}
	_, _ = fmt.Fprintf(r.out, "    Total:      %s\n", FormatBytes(info.TotalSize))

	if info.Watcher != "" {
		_, _ = fmt.Fprintf(r.out, "\n  Watcher: %s\n", info.Watcher)
	}
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderMode(mode search.Mode) string {
	switch mode {
	case search.ModeHybrid:
		return r.styles.Success.Render(string(mode))
	case search.ModeVectorOnly:
		return r.styles.Warning.Render(string(mode))
	default:
		return r.styles.Error.Render(string(mode))
	}
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
