package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjornefisk/StudyTutor/internal/embed"
	"github.com/bjornefisk/StudyTutor/internal/store"
)

// saveBundle writes a two-chunk static-embedded bundle into dir.
func saveBundle(t *testing.T, dir string, withTokens bool) {
	t.Helper()
	ctx := context.Background()
	emb := embed.NewStaticEmbedder()
	texts := []string{"Osmosis moves water.", "Mitochondria produce ATP."}

	b := store.Bundle{
		Info:    store.IndexInfo{EmbedBackend: emb.Backend(), EmbedModel: emb.ModelName(), Dim: emb.Dimensions()},
		Chunks:  make([]store.Chunk, len(texts)),
		Vectors: make([][]float32, len(texts)),
	}
	if withTokens {
		b.Tokens = make([][]string, len(texts))
	}
	for i, text := range texts {
		vec, err := emb.Embed(ctx, text)
		require.NoError(t, err)
		b.Chunks[i] = store.Chunk{Source: "notes.pdf", ChunkIndex: i, Text: text}
		b.Vectors[i] = vec
		if withTokens {
			b.Tokens[i] = store.Tokenize(text)
		}
	}
	require.NoError(t, store.Save(ctx, dir, b))
}

func TestChecker_CheckIndex_Corrupt(t *testing.T) {
	// Given: a bundle whose vectors file was truncated
	dir := t.TempDir()
	saveBundle(t, dir, true)
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.VectorsFile), []byte{1, 2, 3}, 0o644))

	// When: checking the index
	ic := New().CheckIndex(context.Background(), dir)

	// Then: the check fails and nothing downstream treats it as loaded
	assert.Equal(t, StatusFail, ic.Result().Status)
	assert.True(t, ic.Result().IsCritical())
	assert.False(t, ic.loaded)
}

func TestChecker_CheckLexical(t *testing.T) {
	dir := t.TempDir()
	saveBundle(t, dir, false)
	checker := New()
	noTokens := checker.CheckIndex(context.Background(), dir)
	require.True(t, noTokens.loaded)

	tests := []struct {
		name    string
		backend string
		bundle  IndexCheck
		want    CheckStatus
		message string
	}{
		{"memory with tokens", store.LexicalMemory, IndexCheck{loaded: true, hasTokens: true}, StatusPass, "memory"},
		{"default backend", "", IndexCheck{loaded: true, hasTokens: true}, StatusPass, "memory"},
		{"disabled", store.LexicalNone, IndexCheck{}, StatusWarn, "vector-only"},
		{"bundle without tokens", store.LexicalMemory, noTokens, StatusWarn, store.TokensFile},
		{"unknown backend", "lucene", IndexCheck{}, StatusFail, "unknown lexical backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := checker.CheckLexical(context.Background(), tt.backend, store.DefaultBM25Config(), tt.bundle)
			assert.Equal(t, tt.want, result.Status)
			assert.Contains(t, result.Message, tt.message)
			assert.False(t, result.IsCritical())
		})
	}
}
