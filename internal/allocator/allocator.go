package allocator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/contact-scheduler/internal/availability"
	"github.com/signalsfoundry/contact-scheduler/internal/logging"
	"github.com/signalsfoundry/contact-scheduler/model"
)

// BusyQuerier is the part of the station availability oracle the
// allocator needs.
type BusyQuerier interface {
	QueryBusy(ctx context.Context, station string, start, end time.Time) ([]model.Interval, error)
}

// bookingNamespace seeds deterministic booking ids.
var bookingNamespace = uuid.MustParse("6f1c2b8e-4d5a-5e3f-9a70-3c2d1e0b9f41")

// BookingID derives the id of the booking of request at station starting
// at start. Identical inputs always produce the same id.
func BookingID(request, station uuid.UUID, start, end time.Time) uuid.UUID {
	return uuid.NewSHA1(bookingNamespace, []byte(fmt.Sprintf("%s|%s|%d|%d", request, station, start.UnixNano(), end.UnixNano())))
}

// Allocator is the greedy earliest-deadline scheduler. It is stateless
// between calls to ScheduleAll.
type Allocator struct {
	availability BusyQuerier
	rules        []Rule
	slot         time.Duration
	log          logging.Logger
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithSlotDuration overrides DefaultSlotDuration.
func WithSlotDuration(d time.Duration) Option {
	return func(a *Allocator) {
		if d > 0 {
			a.slot = d
		}
	}
}

// WithRules appends candidate rules. Every rule must allow a candidate.
func WithRules(rules ...Rule) Option {
	return func(a *Allocator) {
		for _, r := range rules {
			if r != nil {
				a.rules = append(a.rules, r)
			}
		}
	}
}

// WithLogger sets the logger used for shortfall and skip warnings.
func WithLogger(l logging.Logger) Option {
	return func(a *Allocator) {
		if l != nil {
			a.log = l
		}
	}
}

// New constructs an Allocator that consults availability for every
// candidate.
func New(availability BusyQuerier, opts ...Option) *Allocator {
	a := &Allocator{
		availability: availability,
		slot:         DefaultSlotDuration,
		log:          logging.Noop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ScheduleAll recomputes bookings for the whole backlog from scratch.
//
// Requests are ordered by ascending EndTime (stable, so ties keep input
// order). All contact requests are placed before any RF request. Each
// request walks its slots in time order; a slot is booked at the first
// station whose candidate interval is unclaimed in this pass, accepted by
// every rule and free at the availability oracle. Running out of slots is
// not an error: the shortfall is reported in the plan.
//
// Inputs are not modified. Any collaborator error aborts the pass and no
// plan is returned; such errors match availability.ErrUnavailable.
func (a *Allocator) ScheduleAll(ctx context.Context, requests []model.Request, stations []model.GroundStation) (*Plan, error) {
	plan := newPlan()

	sorted := make([]model.Request, 0, len(requests))
	for _, r := range requests {
		h := r.Header()
		if _, dup := plan.Results[h.ID]; dup {
			a.log.Warn(ctx, "duplicate request id; ignoring later copy", logging.String("request_id", h.ID.String()))
			continue
		}
		res := Result{RequestID: h.ID, Kind: r.Kind(), Requested: r.Demand(), Remaining: r.Demand()}
		if err := r.Validate(); err != nil {
			a.log.Warn(ctx, "skipping invalid request", logging.String("request_id", h.ID.String()), logging.Err(err))
			res.Skipped = err.Error()
			plan.record(res)
			continue
		}
		plan.record(res)
		sorted = append(sorted, r)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Header().EndTime.Before(sorted[j].Header().EndTime)
	})

	for _, rule := range a.rules {
		if p, ok := rule.(Preparer); ok {
			if err := p.Prepare(ctx, sorted, stations); err != nil {
				return nil, collaboratorError(fmt.Errorf("prepare %s rule: %w", rule.Name(), err))
			}
		}
	}

	byID := make(map[uuid.UUID]model.GroundStation, len(stations))
	for _, gs := range stations {
		byID[gs.ID] = gs
	}

	p := &pass{Allocator: a, plan: plan, claims: newClaims()}

	for _, r := range sorted {
		if c, ok := r.(model.ContactRequest); ok {
			if err := p.scheduleContact(ctx, c, byID); err != nil {
				return nil, err
			}
		}
	}
	for _, r := range sorted {
		if rf, ok := r.(model.RFRequest); ok {
			if err := p.scheduleRF(ctx, rf, stations); err != nil {
				return nil, err
			}
		}
	}

	for _, id := range plan.Order {
		res := plan.Results[id]
		if res.Remaining > 0 && res.Skipped == "" {
			a.log.Warn(ctx, "request not fully booked",
				logging.String("request_id", id.String()),
				logging.String("kind", string(res.Kind)),
				logging.Duration("requested", res.Requested),
				logging.Duration("remaining", res.Remaining),
			)
		}
	}
	return plan, nil
}

// pass holds the state of one ScheduleAll run.
type pass struct {
	*Allocator
	plan   *Plan
	claims *claims
}

func (p *pass) scheduleContact(ctx context.Context, req model.ContactRequest, stations map[uuid.UUID]model.GroundStation) error {
	res := p.plan.Results[req.ID]
	gs, ok := stations[req.GroundStationID]
	if !ok {
		p.log.Warn(ctx, "contact request names unknown ground station",
			logging.String("request_id", req.ID.String()),
			logging.String("ground_station_id", req.GroundStationID.String()))
		res.Skipped = "unknown ground station"
		p.plan.Results[req.ID] = res
		return nil
	}
	id := gs.ID
	res.GroundStationID = &id

	for _, slot := range Divide(req.StartTime, req.EndTime, p.slot) {
		if res.Remaining <= 0 {
			break
		}
		iv, ok, err := p.fit(ctx, req, gs, slot, res.Remaining)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		p.book(&res, req.RequestBase, model.KindContact, gs, iv)
	}
	res.Scheduled = res.Remaining == 0
	p.plan.Results[req.ID] = res
	return nil
}

func (p *pass) scheduleRF(ctx context.Context, req model.RFRequest, stations []model.GroundStation) error {
	res := p.plan.Results[req.ID]

	for _, slot := range Divide(req.StartTime, req.EndTime, p.slot) {
		if res.Remaining <= 0 {
			break
		}
		for _, gs := range stations {
			iv, ok, err := p.fit(ctx, req, gs, slot, res.Remaining)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if res.GroundStationID == nil {
				id := gs.ID
				res.GroundStationID = &id
			}
			p.book(&res, req.RequestBase, model.KindRF, gs, iv)
			break
		}
	}
	res.Scheduled = res.Remaining == 0
	p.plan.Results[req.ID] = res
	return nil
}

// fit narrows slot by every Clipper rule, trims it to want and reports
// whether the result is usable. The returned interval is what gets booked.
func (p *pass) fit(ctx context.Context, req model.Request, gs model.GroundStation, slot Slot, want time.Duration) (model.Interval, bool, error) {
	iv := slot
	for _, rule := range p.rules {
		c, ok := rule.(Clipper)
		if !ok {
			continue
		}
		clipped, ok, err := c.Clip(ctx, Candidate{Request: req, Station: gs, Interval: iv})
		if err != nil {
			return model.Interval{}, false, collaboratorError(fmt.Errorf("%s rule: %w", rule.Name(), err))
		}
		if !ok {
			return model.Interval{}, false, nil
		}
		iv = clipped
	}
	if iv.Duration() > want {
		iv.End = iv.Start.Add(want)
	}
	ok, err := p.usable(ctx, req, gs, iv)
	if err != nil || !ok {
		return model.Interval{}, false, err
	}
	return iv, true, nil
}

// usable checks, cheapest first, that iv is unclaimed at gs, accepted by
// every rule, and free at the availability oracle.
func (p *pass) usable(ctx context.Context, req model.Request, gs model.GroundStation, iv model.Interval) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if p.claims.overlaps(gs.ID, iv) {
		return false, nil
	}

	cand := Candidate{Request: req, Station: gs, Interval: iv}
	for _, rule := range p.rules {
		ok, err := rule.Allow(ctx, cand)
		if err != nil {
			return false, collaboratorError(fmt.Errorf("%s rule: %w", rule.Name(), err))
		}
		if !ok {
			return false, nil
		}
	}

	busy, err := p.availability.QueryBusy(ctx, gs.Name, iv.Start, iv.End)
	if err != nil {
		return false, collaboratorError(fmt.Errorf("query availability of %q: %w", gs.Name, err))
	}
	for _, b := range busy {
		if b.Overlaps(iv) {
			return false, nil
		}
	}
	return true, nil
}

func (p *pass) book(res *Result, h model.RequestBase, kind model.Kind, gs model.GroundStation, iv model.Interval) {
	b := model.Booking{
		ID:              BookingID(h.ID, gs.ID, iv.Start, iv.End),
		RequestID:       h.ID,
		GroundStationID: gs.ID,
		Start:           iv.Start,
		End:             iv.End,
		SatelliteID:     h.SatelliteID,
		Mission:         h.Mission,
		Kind:            kind,
	}
	p.claims.add(gs.ID, iv)
	p.plan.Bookings = append(p.plan.Bookings, b)
	res.Bookings = append(res.Bookings, b)
	res.Remaining -= iv.Duration()
}

// collaboratorError makes err match availability.ErrUnavailable while
// keeping any sentinel it already wraps. Context cancellation is returned
// as is.
func collaboratorError(err error) error {
	if errors.Is(err, availability.ErrUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", availability.ErrUnavailable, err)
}
