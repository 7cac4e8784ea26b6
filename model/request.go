package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidRequest is returned (wrapped) for any request that fails
// validation. Callers should use errors.Is.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound is wrapped by catalog and store lookups that miss.
var ErrNotFound = errors.New("not found")

// Kind identifies the request variant.
type Kind string

const (
	KindContact Kind = "contact"
	KindRF      Kind = "rf"
)

// Status is the lifecycle state of a request as seen by get_state.
type Status string

const (
	StatusUnscheduled     Status = "unscheduled"
	StatusPartiallyBooked Status = "partially_booked"
	StatusScheduled       Status = "scheduled"
	StatusDeleted         Status = "deleted"
)

// RequestBase holds the fields shared by every request variant.
type RequestBase struct {
	ID          uuid.UUID
	Mission     string
	SatelliteID uuid.UUID

	// StartTime and EndTime bound the window in which the request may be
	// served. EndTime is the deadline used for ordering.
	StartTime time.Time
	EndTime   time.Time

	// Scheduled is true once the full demand has been booked.
	Scheduled bool

	// Priority is carried for callers; higher is more important. The
	// allocator orders by deadline only.
	Priority int
}

// Window returns the request window as an Interval.
func (b RequestBase) Window() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}

func (b RequestBase) validate() error {
	if b.Mission == "" {
		return fmt.Errorf("%w: mission is required", ErrInvalidRequest)
	}
	if !b.StartTime.Before(b.EndTime) {
		return fmt.Errorf("%w: start_time %s is not before end_time %s",
			ErrInvalidRequest, b.StartTime.Format(time.RFC3339), b.EndTime.Format(time.RFC3339))
	}
	return nil
}

// Request is the closed sum of RFRequest and ContactRequest.
type Request interface {
	Header() RequestBase
	Kind() Kind
	// Demand is the total station time the request needs.
	Demand() time.Duration
	Validate() error
}

// RFRequest asks for an amount of RF time on any suitable station within
// its window.
type RFRequest struct {
	RequestBase

	UplinkTime   time.Duration
	DownlinkTime time.Duration
	ScienceTime  time.Duration

	MinPasses int

	// GroundStationID is set by the allocator to the station of the first
	// booking; nil until then.
	GroundStationID *uuid.UUID
}

func (r RFRequest) Header() RequestBase { return r.RequestBase }

func (RFRequest) Kind() Kind { return KindRF }

// Demand is the largest of the three components. Uplink, downlink and
// science run concurrently during a contact.
func (r RFRequest) Demand() time.Duration {
	return max(r.UplinkTime, r.DownlinkTime, r.ScienceTime)
}

func (r RFRequest) Validate() error {
	if err := r.RequestBase.validate(); err != nil {
		return err
	}
	if r.UplinkTime < 0 || r.DownlinkTime < 0 || r.ScienceTime < 0 {
		return fmt.Errorf("%w: rf durations must be non-negative", ErrInvalidRequest)
	}
	if r.UplinkTime%time.Second != 0 || r.DownlinkTime%time.Second != 0 || r.ScienceTime%time.Second != 0 {
		return fmt.Errorf("%w: rf durations must be whole seconds", ErrInvalidRequest)
	}
	if r.MinPasses < 1 {
		return fmt.Errorf("%w: min_passes must be at least 1, got %d", ErrInvalidRequest, r.MinPasses)
	}
	return nil
}

// ContactRequest asks for a fixed amount of time at one named station.
type ContactRequest struct {
	RequestBase

	GroundStationID uuid.UUID
	Orbit           string

	Uplink    bool
	Telemetry bool
	Science   bool

	// Acquisition-of-signal timeline, informational.
	AOS   time.Time
	RFOn  time.Time
	RFOff time.Time
	LOS   time.Time

	// Duration is whole seconds of contact to consume within the window.
	Duration time.Duration
}

func (c ContactRequest) Header() RequestBase { return c.RequestBase }

func (ContactRequest) Kind() Kind { return KindContact }

func (c ContactRequest) Demand() time.Duration { return c.Duration }

func (c ContactRequest) Validate() error {
	if err := c.RequestBase.validate(); err != nil {
		return err
	}
	if c.GroundStationID == uuid.Nil {
		return fmt.Errorf("%w: ground_station_id is required", ErrInvalidRequest)
	}
	if c.Duration < 0 {
		return fmt.Errorf("%w: duration must be non-negative", ErrInvalidRequest)
	}
	if c.Duration%time.Second != 0 {
		return fmt.Errorf("%w: duration must be whole seconds", ErrInvalidRequest)
	}
	if c.Duration > c.EndTime.Sub(c.StartTime) {
		return fmt.Errorf("%w: duration %s exceeds window %s",
			ErrInvalidRequest, c.Duration, c.EndTime.Sub(c.StartTime))
	}
	return nil
}

// WithScheduled returns a copy of r with the Scheduled flag replaced.
func WithScheduled(r Request, scheduled bool) Request {
	switch v := r.(type) {
	case RFRequest:
		v.Scheduled = scheduled
		return v
	case ContactRequest:
		v.Scheduled = scheduled
		return v
	default:
		return r
	}
}

// WithID returns a copy of r carrying id.
func WithID(r Request, id uuid.UUID) Request {
	switch v := r.(type) {
	case RFRequest:
		v.ID = id
		return v
	case ContactRequest:
		v.ID = id
		return v
	default:
		return r
	}
}
