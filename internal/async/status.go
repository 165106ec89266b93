// Package async loads the corpus index in the background so servers can
// answer (not-ready) while a large bundle is still being read.
package async

import (
	"sync"
	"time"
)

// LoadStatus is the overall load state.
type LoadStatus string

const (
	// StatusLoading indicates the bundle is being read.
	StatusLoading LoadStatus = "loading"
	// StatusReady indicates the index is loaded and swapped in.
	StatusReady LoadStatus = "ready"
	// StatusMissing indicates there was no bundle to load.
	StatusMissing LoadStatus = "missing"
	// StatusError indicates the load failed.
	StatusError LoadStatus = "error"
)

// LoadSnapshot is an immutable snapshot of load progress.
type LoadSnapshot struct {
	Status        LoadStatus `json:"status"`
	ElapsedMillis int64      `json:"elapsed_ms"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

// LoadProgress provides thread-safe tracking of a background load.
type LoadProgress struct {
	mu sync.RWMutex

	status       LoadStatus
	startTime    time.Time
	endTime      time.Time
	errorMessage string
}

// NewLoadProgress creates a tracker in the loading state.
func NewLoadProgress() *LoadProgress {
	return &LoadProgress{
		status:    StatusLoading,
		startTime: time.Now(),
	}
}

func (p *LoadProgress) finish(status LoadStatus, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = status
	p.errorMessage = message
	p.endTime = time.Now()
}

// IsLoading returns true while the load is in progress.
func (p *LoadProgress) IsLoading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusLoading
}

// Snapshot returns an immutable copy of the current state. Elapsed time
// stops counting once the load finishes.
func (p *LoadProgress) Snapshot() LoadSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	end := p.endTime
	if end.IsZero() {
		end = time.Now()
	}
	return LoadSnapshot{
		Status:        p.status,
		ElapsedMillis: end.Sub(p.startTime).Milliseconds(),
		ErrorMessage:  p.errorMessage,
	}
}
