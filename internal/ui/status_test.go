package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjornefisk/StudyTutor/internal/search"
)

func readyStatus() StatusInfo {
	return StatusInfo{
		Status: search.Status{
			Ready:          true,
			Mode:           search.ModeHybrid,
			Chunks:         250,
			IndexDir:       "/data/index",
			VectorBackend:  "flat",
			LexicalBackend: "memory",
			Embedder:       "ollama/nomic-embed-text",
			Expansion:      "llm",
			LoadedAt:       time.Now(),
		},
		MetadataSize: 512 * 1024,
		VectorSize:   3 * 1024 * 1024,
		TokensSize:   100 * 1024,
		TotalSize:    3*1024*1024 + 612*1024,
		Watcher:      "fsnotify",
	}
}

func TestStatusRenderer_Render_Ready(t *testing.T) {
	// Given: a plain status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering a hybrid index
	require.NoError(t, r.Render(readyStatus()))

	// Then: mode, backends and sizes are shown
	out := buf.String()
	assert.Contains(t, out, "Index Status")
	assert.Contains(t, out, "Mode:         hybrid")
	assert.Contains(t, out, "Chunks:       250")
	assert.Contains(t, out, "Loaded:       just now")
	assert.Contains(t, out, "Lexical:    memory")
	assert.Contains(t, out, "Embedder:   ollama/nomic-embed-text")
	assert.Contains(t, out, "Vectors:    3.0 MB")
	assert.Contains(t, out, "Tokens:     100.0 KB")
	assert.NotContains(t, out, "Graph:")
	assert.Contains(t, out, "Watcher: fsnotify")
}

func TestStatusRenderer_Render_NotReady(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	require.NoError(t, r.Render(StatusInfo{Status: search.Status{Mode: search.ModeNotReady, LexicalBackend: "memory"}}))

	out := buf.String()
	assert.Contains(t, out, "Mode:         not-ready")
	assert.Contains(t, out, search.NotReadyMessage)
	assert.NotContains(t, out, "Chunks:")
}

func TestStatusRenderer_Render_LexicalError(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)
	info := readyStatus()
	info.Mode = search.ModeVectorOnly
	info.LexicalBackend = "sqlite"
	info.LexicalError = "lexical backend \"sqlite\" unavailable"

	require.NoError(t, r.Render(info))

	assert.Contains(t, buf.String(), "vector-only")
	assert.Contains(t, buf.String(), "unavailable")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	// Given: a ready status
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering JSON
	require.NoError(t, r.RenderJSON(readyStatus()))

	// Then: engine fields are flattened beside the sizes
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, true, parsed["ready"])
	assert.Equal(t, "hybrid", parsed["mode"])
	assert.Equal(t, float64(250), parsed["chunks"])
	assert.Equal(t, float64(3*1024*1024), parsed["vector_size"])
	assert.Equal(t, "fsnotify", parsed["watcher"])
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{2 * 1024 * 1024 * 1024, "2.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "just now", formatTime(time.Now()))
	assert.Equal(t, "1 minute ago", formatTime(time.Now().Add(-90*time.Second)))
	assert.Equal(t, "5 minutes ago", formatTime(time.Now().Add(-5*time.Minute)))
	assert.Equal(t, "2 hours ago", formatTime(time.Now().Add(-2*time.Hour-time.Minute)))
	old := time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local)
	assert.Equal(t, "2024-03-01 09:30", formatTime(old))
}
