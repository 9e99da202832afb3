package release

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// StaleLockThreshold is the maximum age of a cache lock before it's
	// considered abandoned. It exceeds DefaultTimeout so a slow download
	// keeps its lock.
	StaleLockThreshold = 2 * DefaultTimeout

	lockFileName = ".download.lock"
)

// ErrLockExists is returned while another process downloads into the same
// cache directory.
var ErrLockExists = errors.New("cache lock exists: another download may be in progress")

// CacheLock is an exclusive lock on one release cache directory.
type CacheLock struct {
	path string
	file *os.File
}

// AcquireCacheLock takes the lock for dir, creating dir if needed.
// Uses O_CREATE|O_EXCL for atomic lock creation. A stale lock is removed and
// acquisition retried once.
func AcquireCacheLock(ctx context.Context, dir string) (*CacheLock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	lockPath := filepath.Join(dir, lockFileName)

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if stale, _ := isLockStale(lockPath); !stale {
			return nil, ErrLockExists
		}
		os.Remove(lockPath)
		file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err != nil {
			return nil, ErrLockExists
		}
	}

	lockData := fmt.Sprintf("pid=%d\ntimestamp=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(lockData); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("write lock data: %w", err)
	}

	return &CacheLock{path: lockPath, file: file}, nil
}

// Release releases the lock. It is safe to call more than once.
func (l *CacheLock) Release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	if l.path != "" {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove lock file: %w", err)
		}
		l.path = ""
	}

	return nil
}

// isLockStale checks if a lock file is older than StaleLockThreshold.
func isLockStale(lockPath string) (bool, error) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false, err
	}
	return time.Since(info.ModTime()) > StaleLockThreshold, nil
}
