// Package events publishes booking-change notifications after each
// committed reschedule.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SubjectRescheduled is the default subject for reschedule events.
const SubjectRescheduled = "bookings.rescheduled"

// Rescheduled describes one committed pass.
type Rescheduled struct {
	PassID      uuid.UUID   `json:"pass_id"`
	CommittedAt time.Time   `json:"committed_at"`
	Trigger     string      `json:"trigger"`
	Bookings    int         `json:"bookings"`
	Added       int         `json:"added"`
	Removed     int         `json:"removed"`
	Scheduled   []uuid.UUID `json:"scheduled"`
	Shortfalls  []uuid.UUID `json:"shortfalls"`
}

// Publisher delivers events. Publish must not block for long; delivery
// failures are reported but never undo a commit.
type Publisher interface {
	Publish(ctx context.Context, ev Rescheduled) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Rescheduled) error { return nil }

func (Noop) Close() error { return nil }

// Memory records events in order. Used in tests and by the dry-run CLI.
type Memory struct {
	mu     sync.Mutex
	events []Rescheduled
}

// Publish implements Publisher.
func (m *Memory) Publish(_ context.Context, ev Rescheduled) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Close implements Publisher.
func (m *Memory) Close() error { return nil }

// Events returns a copy of the recorded events.
func (m *Memory) Events() []Rescheduled {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Rescheduled(nil), m.events...)
}
