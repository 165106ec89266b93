// Package integration exercises the retrieval stack end to end: bundles
// saved to disk, loaded by every backend and served through the engine,
// the MCP server and the index watcher.
package integration

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/bjornefisk/StudyTutor/internal/embed"
	"github.com/bjornefisk/StudyTutor/internal/logging"
	"github.com/bjornefisk/StudyTutor/internal/search"
	"github.com/bjornefisk/StudyTutor/internal/store"
)

var corpus = []string{
	"Photosynthesis converts light energy into chemical energy inside chloroplasts.",
	"Mitochondria are the powerhouse of the cell and produce ATP.",
	"The code PHOTOSYN_42 labels the light-dependent reactions.",
	"Osmosis moves water across a semipermeable membrane.",
	"Newton's second law relates force, mass and acceleration.",
	"The French Revolution began in 1789 with the storming of the Bastille.",
}

// queryCase is one entry of testdata/queries.yaml.
type queryCase struct {
	Name      string `yaml:"name"`
	Query     string `yaml:"query"`
	WantChunk int    `yaml:"want_chunk"`
}

func loadQueries(t *testing.T) []queryCase {
	t.Helper()
	data, err := os.ReadFile("testdata/queries.yaml")
	require.NoError(t, err)
	var file struct {
		Queries []queryCase `yaml:"queries"`
	}
	require.NoError(t, yaml.Unmarshal(data, &file))
	require.NotEmpty(t, file.Queries)
	return file.Queries
}

// saveCorpus embeds texts with the static embedder and saves a bundle
// with tokens into dir.
func saveCorpus(t *testing.T, dir string, texts []string) {
	t.Helper()
	ctx := context.Background()
	emb := embed.NewStaticEmbedder()

	b := store.Bundle{
		Info:    store.IndexInfo{EmbedBackend: emb.Backend(), EmbedModel: emb.ModelName(), Dim: emb.Dimensions()},
		Chunks:  make([]store.Chunk, len(texts)),
		Vectors: make([][]float32, len(texts)),
		Tokens:  make([][]string, len(texts)),
	}
	for i, text := range texts {
		vec, err := emb.Embed(ctx, text)
		require.NoError(t, err)
		b.Chunks[i] = store.Chunk{Source: "course.pdf", Page: i / 2, ChunkIndex: i, Text: text}
		b.Vectors[i] = vec
		b.Tokens[i] = store.Tokenize(text)
	}
	require.NoError(t, store.Save(ctx, dir, b))
}

func loadOptions(t *testing.T, vectorBackend, lexicalBackend string) store.LoadOptions {
	t.Helper()
	build, err := store.NewLexicalBuilder(context.Background(), lexicalBackend, store.DefaultBM25Config())
	require.NoError(t, err)
	return store.LoadOptions{
		VectorBackend: vectorBackend,
		HNSW:          store.DefaultHNSWConfig(),
		Lexical:       build,
	}
}

func newEngine(t *testing.T, lexicalBackend string) *search.Engine {
	t.Helper()
	e := search.NewEngine(search.EngineConfig{
		Embedder:       embed.NewStaticEmbedder(),
		Expander:       search.HeuristicExpander{},
		LexicalBackend: lexicalBackend,
		Logger:         logging.Discard(),
	})
	t.Cleanup(func() { _ = e.Close() })
	return e
}
