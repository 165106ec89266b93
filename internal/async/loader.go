package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
)

// LoadFunc loads the index and swaps it into the engine.
type LoadFunc func(ctx context.Context) error

// Loader runs a LoadFunc once in a background goroutine.
type Loader struct {
	load     LoadFunc
	progress *LoadProgress
	logger   *slog.Logger

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
	err     error
}

// NewLoader creates a loader for load.
func NewLoader(load LoadFunc, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		load:     load,
		progress: NewLoadProgress(),
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Progress returns the progress tracker.
func (l *Loader) Progress() *LoadProgress {
	return l.progress
}

// Snapshot is shorthand for Progress().Snapshot().
func (l *Loader) Snapshot() LoadSnapshot {
	return l.progress.Snapshot()
}

// Start begins loading in a background goroutine and returns immediately.
// Calls after the first are no-ops.
func (l *Loader) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	go l.run(ctx)
}

func (l *Loader) run(ctx context.Context) {
	defer close(l.doneCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-l.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := l.load(ctx)
	snap := l.progress.Snapshot()
	switch {
	case err == nil:
		l.progress.finish(StatusReady, "")
		l.logger.Info("index load finished", slog.Int64("duration_ms", snap.ElapsedMillis))
	case errors.Is(err, tterrors.ErrIndexMissing):
		// A missing bundle is the normal state before the first ingestion.
		l.progress.finish(StatusMissing, err.Error())
		l.logger.Warn("index not found, serving not-ready until ingestion runs")
	default:
		l.progress.finish(StatusError, err.Error())
		l.logger.Error("index load failed", slog.String("error", err.Error()))
	}

	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

// Stop cancels a running load and waits for it to end. Safe to call
// more than once and before Start.
func (l *Loader) Stop() {
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()

	l.stopOnce.Do(func() { close(l.stopCh) })
	if started {
		<-l.doneCh
	}
}

// Wait blocks until the load completes and returns its error. Wait
// before Start blocks until Start is called and the load ends.
func (l *Loader) Wait() error {
	<-l.doneCh
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Done is closed when the load completes.
func (l *Loader) Done() <-chan struct{} {
	return l.doneCh
}
