package lock

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/crewportal/ruletune/internal/fileutil"
	"github.com/gofrs/flock"
)

// FileLock is an advisory flock(2) lock on a sidecar file. It only excludes processes
// that use the same lock file.
type FileLock struct {
	path       string
	retryDelay time.Duration
	timeout    time.Duration
}

// NewFileLock returns a lock on path that waits up to timeout (0 means until ctx ends).
func NewFileLock(path string, timeout time.Duration) *FileLock {
	return &FileLock{path: path, retryDelay: 200 * time.Millisecond, timeout: timeout}
}

func (l *FileLock) Lock(ctx context.Context) (func() error, error) {
	if err := fileutil.EnsureDir(filepath.Dir(l.path)); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	fl := flock.New(l.path)
	ok, err := fl.TryLockContext(ctx, l.retryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, l.path, ctx.Err())
		}
		return nil, fmt.Errorf("flock %s: %w", l.path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAcquired, l.path)
	}
	return fl.Unlock, nil
}
