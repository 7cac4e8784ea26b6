package timectrl

import (
	"sync"
	"time"
)

// Clock is the time source used by the scheduler service. Components take
// a Clock rather than calling time.Now so tests can control time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that receives the current time once d has
	// elapsed on this clock.
	After(d time.Duration) <-chan time.Time
}

// System is the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

func (System) After(d time.Duration) <-chan time.Time { return time.After(d) }

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// Manual is a Clock that only moves when told to.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
}

// NewManual constructs a Manual clock reading start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// After registers a timer that fires when Advance or Set moves the clock to
// or past now+d. A non-positive d fires immediately.
func (m *Manual) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- m.now
		return ch
	}
	m.waiters = append(m.waiters, waiter{deadline: m.now.Add(d), ch: ch})
	return ch
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	now := m.now.Add(d)
	m.mu.Unlock()
	m.Set(now)
}

// Set moves the clock to t and fires any timers that are due.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	pending := m.waiters[:0]
	var due []waiter
	for _, w := range m.waiters {
		if !w.deadline.After(t) {
			due = append(due, w)
			continue
		}
		pending = append(pending, w)
	}
	m.waiters = pending
	m.mu.Unlock()

	// Channels are buffered; send outside the lock.
	for _, w := range due {
		w.ch <- t
	}
}

// Pending reports how many timers have not fired yet.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}
