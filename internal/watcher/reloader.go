package watcher

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bjornefisk/StudyTutor/internal/store"
)

// Swapper installs a freshly loaded index. *search.Engine satisfies it.
type Swapper interface {
	Swap(idx *store.Index)
}

// LoadFunc loads the bundle in dir.
type LoadFunc func(ctx context.Context, dir string) (*store.Index, error)

// StoreLoader returns a LoadFunc backed by store.Load.
func StoreLoader(opts store.LoadOptions) LoadFunc {
	return func(ctx context.Context, dir string) (*store.Index, error) {
		return store.Load(ctx, dir, opts)
	}
}

// Reloader loads the bundle and swaps it in on every batch.
type Reloader struct {
	dir     string
	swapper Swapper
	load    LoadFunc
	logger  *slog.Logger

	reloads  atomic.Int64
	failures atomic.Int64
}

// NewReloader creates a Reloader for the bundle in dir.
func NewReloader(dir string, swapper Swapper, load LoadFunc, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{dir: dir, swapper: swapper, load: load, logger: logger}
}

// HandleBatch implements Handler. On a load error the previous index
// keeps serving.
func (r *Reloader) HandleBatch(ctx context.Context, events []FileEvent) {
	start := time.Now()
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Operation.String() + " " + e.Name
	}

	idx, err := r.load(ctx, r.dir)
	if err != nil {
		r.failures.Add(1)
		r.logger.Warn("index reload failed, keeping previous index",
			slog.String("dir", r.dir),
			slog.Any("changes", names),
			slog.String("error", err.Error()))
		return
	}

	r.swapper.Swap(idx)
	r.reloads.Add(1)
	r.logger.Info("index reloaded",
		slog.String("dir", r.dir),
		slog.Int("chunks", idx.Len()),
		slog.Any("changes", names),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
}

// Reloads returns the number of successful reloads.
func (r *Reloader) Reloads() int64 { return r.reloads.Load() }

// Failures returns the number of failed reloads.
func (r *Reloader) Failures() int64 { return r.failures.Load() }
