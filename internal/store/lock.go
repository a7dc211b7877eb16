package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// BuildLockFile is the lock file inside the index directory. Holding it is
// what makes a process the single writer of that directory.
const BuildLockFile = ".build.lock"

// FileLock is the cross-process build lock of one index directory. Two
// builders of the same project, in one process or several, exclude each
// other through it.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates the lock for index directory dir.
func NewFileLock(dir string) *FileLock {
	path := filepath.Join(dir, BuildLockFile)
	return &FileLock{path: path, flock: flock.New(path)}
}

// TryLock takes the lock without blocking, creating dir if needed. It
// reports false when another holder has it.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = ok
	return ok, nil
}

// Unlock releases the lock. Unlocking a lock that is not held is a no-op.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }
