package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bjornefisk/StudyTutor/internal/store"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a bundle file appeared.
	OpCreate Operation = iota
	// OpModify indicates a bundle file was written or replaced.
	OpModify
	// OpDelete indicates a bundle file was removed.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a change to one bundle file.
type FileEvent struct {
	// Name is the base name of the file, e.g. "vectors.bin".
	Name      string
	Operation Operation
	Timestamp time.Time
}

// Options configures the watcher.
type Options struct {
	// DebounceWindow is the quiet period before a reload. Default: 500ms.
	DebounceWindow time.Duration
	// PollInterval is the scan interval in polling mode. Default: 2s.
	PollInterval time.Duration
	// ForcePolling skips fsnotify.
	ForcePolling bool
	Logger       *slog.Logger
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 500 * time.Millisecond,
		PollInterval:   2 * time.Second,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// bundleFiles are the names whose changes trigger a reload. Temp files
// written by store.Save and the lock file are not in the set.
var bundleFiles = map[string]bool{
	store.MetadataFile: true,
	store.VectorsFile:  true,
	store.ConfigFile:   true,
	store.TokensFile:   true,
	store.GraphFile:    true,
}

// IsBundleFile reports whether name is one of the index bundle files.
func IsBundleFile(name string) bool {
	return bundleFiles[filepath.Base(name)]
}

// Handler receives debounced batches.
type Handler interface {
	HandleBatch(ctx context.Context, events []FileEvent)
}

// IndexWatcher watches one index directory.
type IndexWatcher struct {
	dir       string
	handler   Handler
	opts      Options
	logger    *slog.Logger
	debouncer *Debouncer

	fsWatcher *fsnotify.Watcher
	poller    *Poller

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
}

// New creates a watcher for dir. The directory must exist.
func New(dir string, handler Handler, opts Options) (*IndexWatcher, error) {
	opts = opts.WithDefaults()
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve index dir: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat index dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("index path %s is not a directory", absDir)
	}

	w := &IndexWatcher{
		dir:       absDir,
		handler:   handler,
		opts:      opts,
		logger:    opts.Logger,
		debouncer: NewDebouncer(opts.DebounceWindow, opts.Logger),
		stopCh:    make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			if err = fsw.Add(absDir); err == nil {
				w.fsWatcher = fsw
			} else {
				_ = fsw.Close()
			}
		}
		if err != nil {
			w.logger.Warn("fsnotify unavailable, falling back to polling",
				slog.String("dir", absDir),
				slog.String("error", err.Error()))
		}
	}
	if w.fsWatcher == nil {
		w.poller = NewPoller(absDir, opts.PollInterval)
	}
	return w, nil
}

// Mode returns "fsnotify" or "polling".
func (w *IndexWatcher) Mode() string {
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}

// Dir returns the watched directory.
func (w *IndexWatcher) Dir() string { return w.dir }

// Run watches until ctx is canceled or Stop is called.
func (w *IndexWatcher) Run(ctx context.Context) error {
	w.logger.Info("index watcher started",
		slog.String("dir", w.dir),
		slog.String("mode", w.Mode()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.forwardBatches(ctx)
	}()
	defer func() {
		w.Stop()
		<-done
	}()

	if w.poller != nil {
		return w.runPolling(ctx)
	}
	return w.runFsnotify(ctx)
}

func (w *IndexWatcher) runFsnotify(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("index watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *IndexWatcher) runPolling(ctx context.Context) error {
	if err := w.poller.Prime(); err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			events, err := w.poller.Scan()
			if err != nil {
				w.logger.Warn("index poll failed", slog.String("error", err.Error()))
				continue
			}
			for _, e := range events {
				w.debouncer.Add(e)
			}
		}
	}
}

func (w *IndexWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !IsBundleFile(name) {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	default:
		return
	}

	w.debouncer.Add(FileEvent{Name: name, Operation: op, Timestamp: time.Now()})
}

func (w *IndexWatcher) forwardBatches(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(batch) > 0 {
				w.handler.HandleBatch(ctx, batch)
			}
		}
	}
}

// Stop stops the watcher. Safe to call multiple times.
func (w *IndexWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
}
