package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
)

// lockRetryDelay is how often a blocked lock attempt re-checks the file.
const lockRetryDelay = 50 * time.Millisecond

// dirLock guards an index directory against readers observing a half
// written bundle. Loads take the shared lock, saves take the exclusive one.
type dirLock struct {
	path  string
	flock *flock.Flock
}

func newDirLock(dir string) *dirLock {
	p := filepath.Join(dir, LockFile)
	return &dirLock{path: p, flock: flock.New(p)}
}

// shared acquires a read lock, waiting until ctx is done.
func (l *dirLock) shared(ctx context.Context) error {
	ok, err := l.flock.TryRLockContext(ctx, lockRetryDelay)
	return l.result(ok, err)
}

// exclusive acquires the write lock, creating dir if needed.
func (l *dirLock) exclusive(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	ok, err := l.flock.TryLockContext(ctx, lockRetryDelay)
	return l.result(ok, err)
}

func (l *dirLock) result(ok bool, err error) error {
	if err != nil {
		return tterrors.New(tterrors.ErrCodeIndexLocked, "index directory is locked", err).
			WithDetail("lock", l.path)
	}
	if !ok {
		return tterrors.New(tterrors.ErrCodeIndexLocked, "index directory is locked", nil).
			WithDetail("lock", l.path)
	}
	return nil
}

// unlock releases the lock. Calling it without holding the lock is a no-op.
func (l *dirLock) unlock() {
	_ = l.flock.Unlock()
}
