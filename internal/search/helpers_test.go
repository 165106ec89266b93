package search

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bjornefisk/StudyTutor/internal/store"
)

const (
	fakeBackend = "fake"
	fakeModel   = "fake-model"
)

// fakeEmbedder returns scripted vectors. Unknown texts get fallback.
type fakeEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	fail     map[string]bool
	block    map[string]bool // wait for ctx cancellation
	calls    []string
}

func newFakeEmbedder(fallback []float32) *fakeEmbedder {
	return &fakeEmbedder{
		vectors:  map[string][]float32{},
		fallback: fallback,
		fail:     map[string]bool{},
		block:    map[string]bool{},
	}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	fail, block := f.fail[text], f.block[text]
	vec, ok := f.vectors[text]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail {
		return nil, errors.New("embedding backend down")
	}
	if !ok {
		vec = f.fallback
	}
	return append([]float32(nil), vec...), nil
}

func (f *fakeEmbedder) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEmbedder) Dimensions() int                  { return 0 }
func (f *fakeEmbedder) ModelName() string                { return fakeModel }
func (f *fakeEmbedder) Backend() string                  { return fakeBackend }
func (f *fakeEmbedder) Available(_ context.Context) bool { return true }
func (f *fakeEmbedder) Close() error                     { return nil }

// scriptedExpander returns fixed variants and counts calls.
type scriptedExpander struct {
	mu       sync.Mutex
	variants []string
	calls    int
}

func (s *scriptedExpander) Expand(_ context.Context, _ string, n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := s.variants
	if len(out) > n {
		out = out[:n]
	}
	return append([]string{}, out...), nil
}

func (s *scriptedExpander) Name() string { return "scripted" }

func (s *scriptedExpander) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// unit returns the dim-dimensional basis vector e_i.
func unit(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}

// mix returns sum of weights[i] * e_i.
func mix(dim int, weights map[int]float32) []float32 {
	v := make([]float32, dim)
	for i, w := range weights {
		v[i] = w
	}
	return v
}

// buildIndex saves a bundle for texts and vectors and loads it back. When
// lexical is non-empty the bundle carries tokens and that backend is used.
func buildIndex(t *testing.T, texts []string, vectors [][]float32, lexical string) *store.Index {
	t.Helper()
	b := corpusBundle(t, texts, vectors)
	if lexical == "" {
		return loadBundle(t, b, nil)
	}
	build, err := store.NewLexicalBuilder(context.Background(), lexical, store.DefaultBM25Config())
	require.NoError(t, err)
	return loadBundle(t, withTokens(b), build)
}

// corpusBundle pairs texts with vectors as one chunk per text.
func corpusBundle(t *testing.T, texts []string, vectors [][]float32) store.Bundle {
	t.Helper()
	require.Len(t, vectors, len(texts))

	chunks := make([]store.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = store.Chunk{Source: "notes.pdf", Page: i / 3, ChunkIndex: i, Text: text}
	}
	return store.Bundle{
		Info:    store.IndexInfo{EmbedBackend: fakeBackend, EmbedModel: fakeModel, Dim: len(vectors[0])},
		Chunks:  chunks,
		Vectors: vectors,
	}
}

// withTokens fills b.Tokens from the chunk texts.
func withTokens(b store.Bundle) store.Bundle {
	b.Tokens = make([][]string, len(b.Chunks))
	for i, c := range b.Chunks {
		b.Tokens[i] = store.Tokenize(c.Text)
	}
	return b
}

// loadBundle saves b and loads it back with build as the lexical builder.
func loadBundle(t *testing.T, b store.Bundle, build store.LexicalBuilder) *store.Index {
	t.Helper()
	opts := store.LoadOptions{Lexical: build}

	dir := t.TempDir()
	require.NoError(t, store.Save(context.Background(), dir, b))
	idx, err := store.Load(context.Background(), dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

// ordinals extracts result ordinals in order.
func ordinals(results []Result) []int {
	out := make([]int, len(results))
	for i, r := range results {
		out[i] = r.Ordinal
	}
	return out
}

// failingRanker is a lexical ranker whose every Score call fails.
type failingRanker struct{}

func (failingRanker) Score(_ context.Context, _ []string) ([]float64, error) {
	return nil, errors.New("fts table dropped")
}
func (failingRanker) Name() string { return "failing" }
func (failingRanker) Close() error { return nil }

func hybridOptions(topK int) Options {
	opts := DefaultOptions()
	opts.TopK = topK
	return opts
}
