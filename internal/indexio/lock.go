package indexio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

// sessionLock keeps two writers, in this or another process, off the same
// index directory. The lock file sits next to the index: <path>.lock
type sessionLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

func newSessionLock(indexPath string) *sessionLock {
	lockPath := filepath.Clean(indexPath) + ".lock"
	return &sessionLock{path: lockPath, flock: flock.New(lockPath)}
}

// acquire takes the lock without blocking. A lock held elsewhere is
// reported as ErrIndexLocked, which is retryable.
func (l *sessionLock) acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return amerrors.New(amerrors.ErrCodeIOFailure, "failed to create index directory", err).
			WithDetail("path", l.path)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return amerrors.New(amerrors.ErrCodeIOFailure, "failed to lock index", err).
			WithDetail("lock", l.path)
	}
	if !ok {
		return amerrors.New(amerrors.ErrCodeIndexLocked, "index is locked by another writer", nil).
			WithDetail("lock", l.path).
			WithSuggestion("stop the other amanidx process using this index")
	}
	l.locked = true
	return nil
}

// release unlocks; calling it on an unlocked lock does nothing.
func (l *sessionLock) release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release index lock: %w", err)
	}
	return nil
}
