// Package lock serialises reschedule passes. At most one pass may read the
// backlog, allocate and replace the committed booking set at a time.
package lock

import (
	"context"
	"errors"
)

// ErrLockNotAcquired is returned when the lock could not be taken before
// the context ended or the retry budget ran out.
var ErrLockNotAcquired = errors.New("reschedule lock not acquired")

// Locker runs fn while holding the reschedule lock.
type Locker interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Mutex is an in-process Locker. Waiting honours context cancellation.
type Mutex struct {
	sem chan struct{}
}

// NewMutex builds an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{sem: make(chan struct{}, 1)}
}

// Do implements Locker.
func (m *Mutex) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return errors.Join(ErrLockNotAcquired, ctx.Err())
	}
	defer func() { <-m.sem }()
	return fn(ctx)
}
