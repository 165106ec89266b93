package watcher

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// Poller detects bundle file changes by comparing modification time and
// size between scans.
type Poller struct {
	dir      string
	interval time.Duration
	state    map[string]fileSnapshot
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// NewPoller creates a poller for dir.
func NewPoller(dir string, interval time.Duration) *Poller {
	return &Poller{
		dir:      dir,
		interval: interval,
		state:    make(map[string]fileSnapshot),
	}
}

// Prime records the current state without emitting events.
func (p *Poller) Prime() error {
	state, err := p.snapshot()
	if err != nil {
		return err
	}
	p.state = state
	return nil
}

// Scan returns the changes since the previous scan, sorted by name.
func (p *Poller) Scan() ([]FileEvent, error) {
	current, err := p.snapshot()
	if err != nil {
		return nil, err
	}
	now := time.Now()

	var events []FileEvent
	for name, snap := range current {
		prev, ok := p.state[name]
		switch {
		case !ok:
			events = append(events, FileEvent{Name: name, Operation: OpCreate, Timestamp: now})
		case !prev.modTime.Equal(snap.modTime) || prev.size != snap.size:
			events = append(events, FileEvent{Name: name, Operation: OpModify, Timestamp: now})
		}
	}
	for name := range p.state {
		if _, ok := current[name]; !ok {
			events = append(events, FileEvent{Name: name, Operation: OpDelete, Timestamp: now})
		}
	}
	p.state = current

	slices.SortFunc(events, func(a, b FileEvent) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return events, nil
}

func (p *Poller) snapshot() (map[string]fileSnapshot, error) {
	state := make(map[string]fileSnapshot, len(bundleFiles))
	for name := range bundleFiles {
		info, err := os.Stat(filepath.Join(p.dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		state[name] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
	}
	return state, nil
}
