package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when a lock stays held by someone else until the context ends.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker acquires an exclusive lock and returns the function that releases it.
type Locker interface {
	Lock(ctx context.Context) (unlock func() error, err error)
}

// Multi acquires every locker in order and releases them in reverse order.
type Multi []Locker

func (m Multi) Lock(ctx context.Context) (func() error, error) {
	unlocks := make([]func() error, 0, len(m))
	release := func() error {
		var errs []error
		for i := len(unlocks) - 1; i >= 0; i-- {
			if err := unlocks[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	for _, l := range m {
		if l == nil {
			continue
		}
		unlock, err := l.Lock(ctx)
		if err != nil {
			_ = release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}
