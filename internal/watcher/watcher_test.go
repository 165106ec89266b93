package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjornefisk/StudyTutor/internal/store"
)

func TestOperation_String(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpCreate, "CREATE"},
		{OpModify, "MODIFY"},
		{OpDelete, "DELETE"},
		{Operation(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.op.String())
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	opts := Options{}.WithDefaults()
	assert.Equal(t, 500*time.Millisecond, opts.DebounceWindow)
	assert.Equal(t, 2*time.Second, opts.PollInterval)
	assert.NotNil(t, opts.Logger)

	custom := Options{DebounceWindow: time.Second}.WithDefaults()
	assert.Equal(t, time.Second, custom.DebounceWindow)
}

func TestIsBundleFile(t *testing.T) {
	assert.True(t, IsBundleFile(store.MetadataFile))
	assert.True(t, IsBundleFile(store.VectorsFile))
	assert.True(t, IsBundleFile(filepath.Join("/data/index", store.ConfigFile)))
	assert.False(t, IsBundleFile(store.LockFile))
	assert.False(t, IsBundleFile(store.VectorsFile+".tmp-123"))
	assert.False(t, IsBundleFile("notes.pdf"))
}

func TestNew_RejectsMissingDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent"), nil, Options{})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(file, nil, Options{})
	assert.Error(t, err)
}

func TestIndexWatcher_HandleFsnotifyEventFilters(t *testing.T) {
	w, err := New(t.TempDir(), nil, Options{DebounceWindow: 10 * time.Millisecond, ForcePolling: true})
	require.NoError(t, err)
	defer w.Stop()

	w.handleFsnotifyEvent(fsnotify.Event{Name: "/x/.lock", Op: fsnotify.Write})
	w.handleFsnotifyEvent(fsnotify.Event{Name: "/x/vectors.bin.tmp-42", Op: fsnotify.Create})
	w.handleFsnotifyEvent(fsnotify.Event{Name: "/x/vectors.bin", Op: fsnotify.Chmod})
	w.handleFsnotifyEvent(fsnotify.Event{Name: "/x/vectors.bin", Op: fsnotify.Create})

	batch := receiveBatch(t, w.debouncer)
	require.Len(t, batch, 1)
	assert.Equal(t, store.VectorsFile, batch[0].Name)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func runWatcher(t *testing.T, w *IndexWatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})
}

func TestIndexWatcher_ReloadsOnSave(t *testing.T) {
	for _, polling := range []bool{false, true} {
		name := "fsnotify"
		if polling {
			name = "polling"
		}
		t.Run(name, func(t *testing.T) {
			// Given: a watched index directory holding a two-chunk bundle
			dir := t.TempDir()
			saveBundle(t, dir, 2)
			swapper := newFakeSwapper(t)
			reloader := NewReloader(dir, swapper, StoreLoader(store.LoadOptions{}), nil)
			w, err := New(dir, reloader, Options{
				DebounceWindow: 50 * time.Millisecond,
				PollInterval:   20 * time.Millisecond,
				ForcePolling:   polling,
			})
			require.NoError(t, err)
			if polling {
				assert.Equal(t, "polling", w.Mode())
			}
			runWatcher(t, w)
			time.Sleep(50 * time.Millisecond)

			// When: ingestion rewrites the bundle with more chunks
			saveBundle(t, dir, 5)

			// Then: the new index is swapped in
			require.Eventually(t, func() bool {
				last := swapper.Last()
				return last != nil && last.Len() == 5
			}, 5*time.Second, 20*time.Millisecond)
		})
	}
}

func TestReloader_KeepsPreviousIndexOnCorruptBundle(t *testing.T) {
	// Given: a reloader that has swapped in a valid bundle
	dir := t.TempDir()
	saveBundle(t, dir, 3)
	swapper := newFakeSwapper(t)
	r := NewReloader(dir, swapper, StoreLoader(store.LoadOptions{}), nil)
	r.HandleBatch(context.Background(), []FileEvent{{Name: store.ConfigFile, Operation: OpModify}})
	require.Equal(t, 1, swapper.Count())

	// When: a half-written config lands in the directory
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.ConfigFile), []byte("{not json"), 0o644))
	r.HandleBatch(context.Background(), []FileEvent{{Name: store.ConfigFile, Operation: OpModify}})

	// Then: nothing new is swapped in and the failure is counted
	assert.Equal(t, 1, swapper.Count())
	assert.Equal(t, 3, swapper.Last().Len())
	assert.Equal(t, int64(1), r.Reloads())
	assert.Equal(t, int64(1), r.Failures())
}

func TestReloader_UsesLoadFunc(t *testing.T) {
	var gotDir string
	swapper := newFakeSwapper(t)
	r := NewReloader("/srv/index", swapper, func(_ context.Context, dir string) (*store.Index, error) {
		gotDir = dir
		return nil, os.ErrNotExist
	}, nil)

	r.HandleBatch(context.Background(), []FileEvent{{Name: store.VectorsFile, Operation: OpDelete}})

	assert.Equal(t, "/srv/index", gotDir)
	assert.Zero(t, swapper.Count())
	assert.Equal(t, int64(1), r.Failures())
}
