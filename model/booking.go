package model

import (
	"time"

	"github.com/google/uuid"
)

// Booking is an immutable commitment of a station to a request.
type Booking struct {
	ID              uuid.UUID
	RequestID       uuid.UUID
	GroundStationID uuid.UUID
	Start           time.Time
	End             time.Time

	SatelliteID uuid.UUID
	Mission     string
	Kind        Kind
	CreatedAt   time.Time
}

// Interval returns the booked range.
func (b Booking) Interval() Interval {
	return Interval{Start: b.Start, End: b.End}
}

// Pass is a visibility window of a satellite above a station's mask.
type Pass struct {
	StationID   uuid.UUID
	SatelliteID uuid.UUID
	Rise        time.Time
	Set         time.Time

	// MaxElevation is the highest elevation (degrees) sampled in the pass.
	MaxElevation float64
}

// Interval returns [Rise, Set).
func (p Pass) Interval() Interval {
	return Interval{Start: p.Rise, End: p.Set}
}

// RequestState reports how much of a request has been booked.
type RequestState struct {
	RequestID uuid.UUID
	Kind      Kind
	Scheduled bool
	Requested time.Duration
	Remaining time.Duration
	Status    Status
	Bookings  []Booking
}

// StatusFor derives the lifecycle status from requested and remaining time.
func StatusFor(requested, remaining time.Duration) Status {
	switch {
	case remaining <= 0:
		return StatusScheduled
	case remaining < requested:
		return StatusPartiallyBooked
	default:
		return StatusUnscheduled
	}
}
