package allocator

import (
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/contact-scheduler/model"
)

// Result is the outcome of one request in a Plan.
type Result struct {
	RequestID uuid.UUID
	Kind      model.Kind
	Requested time.Duration
	Remaining time.Duration
	Scheduled bool

	// GroundStationID is the contact station, or for RF requests the
	// station of the first booking; nil when nothing was booked.
	GroundStationID *uuid.UUID
	Bookings        []model.Booking

	// Skipped explains why the request was not considered at all.
	Skipped string
}

// Status derives the request status from the result.
func (r Result) Status() model.Status {
	return model.StatusFor(r.Requested, r.Remaining)
}

// Plan is the complete output of one ScheduleAll pass.
type Plan struct {
	// Bookings in allocation order.
	Bookings []model.Booking
	Results  map[uuid.UUID]Result
	// Order lists request ids in input order.
	Order []uuid.UUID
}

func newPlan() *Plan {
	return &Plan{Results: make(map[uuid.UUID]Result)}
}

func (p *Plan) record(r Result) {
	p.Results[r.RequestID] = r
	p.Order = append(p.Order, r.RequestID)
}

// Apply returns a copy of r updated with this plan's outcome: the
// Scheduled flag and, for RF requests, the assigned station. Requests the
// plan does not know are returned unchanged.
func (p *Plan) Apply(r model.Request) model.Request {
	res, ok := p.Results[r.Header().ID]
	if !ok {
		return r
	}
	switch v := r.(type) {
	case model.RFRequest:
		v.Scheduled = res.Scheduled
		v.GroundStationID = nil
		if res.GroundStationID != nil {
			id := *res.GroundStationID
			v.GroundStationID = &id
		}
		return v
	case model.ContactRequest:
		v.Scheduled = res.Scheduled
		return v
	default:
		return r
	}
}

// Shortfalls returns results with remaining demand, in input order.
func (p *Plan) Shortfalls() []Result {
	var out []Result
	for _, id := range p.Order {
		if r := p.Results[id]; r.Remaining > 0 {
			out = append(out, r)
		}
	}
	return out
}

// ScheduledIDs returns the ids of fully booked requests, in input order.
func (p *Plan) ScheduledIDs() []uuid.UUID {
	var out []uuid.UUID
	for _, id := range p.Order {
		if p.Results[id].Scheduled {
			out = append(out, id)
		}
	}
	return out
}

// State reports the request state for id.
func (p *Plan) State(id uuid.UUID) (model.RequestState, bool) {
	r, ok := p.Results[id]
	if !ok {
		return model.RequestState{}, false
	}
	return model.RequestState{
		RequestID: id,
		Kind:      r.Kind,
		Scheduled: r.Scheduled,
		Requested: r.Requested,
		Remaining: r.Remaining,
		Status:    r.Status(),
		Bookings:  append([]model.Booking(nil), r.Bookings...),
	}, true
}
