package watcher

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bjornefisk/StudyTutor/internal/store"
)

// fakeSwapper records swapped indexes and closes them on cleanup.
type fakeSwapper struct {
	mu    sync.Mutex
	swaps []*store.Index
}

func (f *fakeSwapper) Swap(idx *store.Index) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swaps = append(f.swaps, idx)
}

func (f *fakeSwapper) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.swaps)
}

func (f *fakeSwapper) Last() *store.Index {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.swaps) == 0 {
		return nil
	}
	return f.swaps[len(f.swaps)-1]
}

func (f *fakeSwapper) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, idx := range f.swaps {
		if idx != nil {
			_ = idx.Close()
		}
	}
}

func newFakeSwapper(t *testing.T) *fakeSwapper {
	t.Helper()
	f := &fakeSwapper{}
	t.Cleanup(f.closeAll)
	return f
}

// saveBundle writes a small vector-only bundle with n chunks into dir.
func saveBundle(t *testing.T, dir string, n int) {
	t.Helper()
	chunks := make([]store.Chunk, n)
	vectors := make([][]float32, n)
	for i := range n {
		chunks[i] = store.Chunk{Source: "biology.pdf", Page: i, ChunkIndex: i, Text: "chlorophyll absorbs light"}
		vectors[i] = []float32{float32(i + 1), 1, 0}
	}
	b := store.Bundle{
		Info:    store.IndexInfo{EmbedBackend: "static", EmbedModel: "test", Dim: 3},
		Chunks:  chunks,
		Vectors: vectors,
	}
	require.NoError(t, store.Save(context.Background(), dir, b))
}
