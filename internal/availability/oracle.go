// Package availability talks to the station state-machine simulator that
// owns each ground station's busy/free timeline.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/contact-scheduler/model"
)

var (
	// ErrUnavailable means the availability source could not answer. It is
	// never interpreted as "free".
	ErrUnavailable = errors.New("station availability unavailable")
	// ErrConflict is returned when a reservation overlaps a busy interval.
	ErrConflict = errors.New("reservation conflicts with busy interval")
	// ErrInvalidState is returned for a state outside the known set.
	ErrInvalidState = errors.New("invalid station state")
)

// State is a station's activity over an interval.
type State string

const (
	StateFree          State = "free"
	StateBothBusy      State = "both_busy"
	StateScienceBusy   State = "science_busy"
	StateTelemetryBusy State = "telemetry_busy"
)

// Busy reports whether s blocks new bookings. Every known state other than
// free is busy.
func (s State) Busy() bool { return s != StateFree }

// ParseState validates a state name.
func ParseState(raw string) (State, error) {
	switch s := State(raw); s {
	case StateFree, StateBothBusy, StateScienceBusy, StateTelemetryBusy:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidState, raw)
	}
}

// Oracle is the station availability collaborator.
type Oracle interface {
	// QueryBusy returns the busy intervals at station intersecting
	// [start, end).
	QueryBusy(ctx context.Context, station string, start, end time.Time) ([]model.Interval, error)
	// Reserve sets station to state over iv on behalf of mission. Reserving
	// StateFree releases whatever was there.
	Reserve(ctx context.Context, station string, iv model.Interval, state State, mission string) error
}

// BusyWindow is one entry of a station timeline.
type BusyWindow struct {
	Start   time.Time
	End     time.Time
	State   State
	Mission string
}

// Interval returns the window range.
func (w BusyWindow) Interval() model.Interval {
	return model.Interval{Start: w.Start, End: w.End}
}
