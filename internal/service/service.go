// Package service owns the reschedule cycle: read the backlog, allocate
// every request from scratch and replace the committed booking set, with
// at most one pass in flight.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/contact-scheduler/core"
	"github.com/signalsfoundry/contact-scheduler/internal/allocator"
	"github.com/signalsfoundry/contact-scheduler/internal/availability"
	"github.com/signalsfoundry/contact-scheduler/internal/events"
	"github.com/signalsfoundry/contact-scheduler/internal/lock"
	"github.com/signalsfoundry/contact-scheduler/internal/logging"
	"github.com/signalsfoundry/contact-scheduler/internal/observability"
	"github.com/signalsfoundry/contact-scheduler/internal/store"
	"github.com/signalsfoundry/contact-scheduler/model"
	"github.com/signalsfoundry/contact-scheduler/timectrl"
)

// RequestStore holds the backlog.
type RequestStore interface {
	SaveRequest(ctx context.Context, r model.Request) error
	GetRequest(ctx context.Context, id uuid.UUID) (model.Request, error)
	ListPending(ctx context.Context) ([]model.Request, error)
	// DeleteRequest removes the request and its bookings atomically and
	// returns the removed bookings.
	DeleteRequest(ctx context.Context, id uuid.UUID) ([]model.Booking, error)
}

// BookingStore holds the committed booking set.
type BookingStore interface {
	ListBookings(ctx context.Context) ([]model.Booking, error)
	BookingsForRequest(ctx context.Context, id uuid.UUID) ([]model.Booking, error)
	CommitPlan(ctx context.Context, updates []store.RequestUpdate, bookings []model.Booking, hook store.CommitHook) (store.Diff, error)
}

// Catalog resolves stations, satellites and exclusion cones.
type Catalog interface {
	ListStations(ctx context.Context) ([]model.GroundStation, error)
	allocator.SatelliteCatalog
	allocator.ExclusionCatalog
}

// ErrPassFailed wraps the error of a reschedule that followed a committed
// Submit or Delete. The mutation itself is stored.
var ErrPassFailed = errors.New("reschedule after commit failed")

// Triggers recorded on passes and events.
const (
	TriggerSubmit   = "submit"
	TriggerDelete   = "delete"
	TriggerManual   = "manual"
	TriggerPeriodic = "periodic"
)

// Scheduler is the single entry point for everything that changes the
// booking set.
type Scheduler struct {
	requests RequestStore
	bookings BookingStore
	catalog  Catalog
	oracle   availability.Oracle

	locker    lock.Locker
	publisher events.Publisher
	metrics   *observability.SchedulerCollector
	clock     timectrl.Clock
	log       logging.Logger

	slot            time.Duration
	visibility      core.VisibilityOracle
	parallelism     int
	exclusion       allocator.ExclusionCalculator
	exclusionOn     bool
	reserveOnCommit bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocker replaces the default in-process mutex.
func WithLocker(l lock.Locker) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Scheduler) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(m *observability.SchedulerCollector) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithClock sets the clock used for pass timing and periodic runs.
func WithClock(c timectrl.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSlotDuration overrides allocator.DefaultSlotDuration.
func WithSlotDuration(d time.Duration) Option {
	return func(s *Scheduler) { s.slot = d }
}

// WithVisibility enables the visibility rule for RF requests.
func WithVisibility(oracle core.VisibilityOracle, parallelism int) Option {
	return func(s *Scheduler) {
		s.visibility = oracle
		s.parallelism = parallelism
	}
}

// WithExclusion enables the exclusion-cone rule. A nil calc uses
// core.ExclusionCalculator.
func WithExclusion(calc allocator.ExclusionCalculator) Option {
	return func(s *Scheduler) {
		s.exclusionOn = true
		s.exclusion = calc
	}
}

// WithReserveOnCommit makes every commit reserve new bookings at, and
// release dropped bookings from, the availability oracle.
func WithReserveOnCommit(on bool) Option {
	return func(s *Scheduler) { s.reserveOnCommit = on }
}

// New builds a Scheduler.
func New(requests RequestStore, bookings BookingStore, catalog Catalog, oracle availability.Oracle, opts ...Option) *Scheduler {
	s := &Scheduler{
		requests:  requests,
		bookings:  bookings,
		catalog:   catalog,
		oracle:    oracle,
		locker:    lock.NewMutex(),
		publisher: events.Noop{},
		clock:     timectrl.System{},
		log:       logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report summarises one committed pass.
type Report struct {
	PassID   uuid.UUID
	Trigger  string
	Plan     *allocator.Plan
	Diff     store.Diff
	Duration time.Duration
}

// Submit validates and stores r, then reschedules the whole backlog. A
// request without an id is given one. When the reschedule fails the
// request stays stored and is placed by the next successful pass; the
// error wraps ErrPassFailed and is returned together with the stored
// request. The returned request is nil when r was not stored.
func (s *Scheduler) Submit(ctx context.Context, r model.Request) (model.Request, *Report, error) {
	if r.Header().ID == uuid.Nil {
		r = model.WithID(r, uuid.New())
	}
	r = model.WithScheduled(r, false)
	if err := r.Validate(); err != nil {
		return nil, nil, err
	}
	if c, ok := r.(model.ContactRequest); ok {
		if err := s.checkStation(ctx, c.GroundStationID); err != nil {
			return nil, nil, err
		}
	}
	if err := s.checkSatellite(ctx, r.Header().SatelliteID); err != nil {
		return nil, nil, err
	}

	var (
		report *Report
		stored bool
	)
	err := s.locker.Do(ctx, func(ctx context.Context) error {
		if err := s.requests.SaveRequest(ctx, r); err != nil {
			return fmt.Errorf("save request: %w", err)
		}
		stored = true
		s.log.Info(ctx, "request submitted",
			logging.String("request_id", r.Header().ID.String()),
			logging.String("kind", string(r.Kind())),
			logging.String("mission", r.Header().Mission))
		var err error
		report, err = s.reschedule(ctx, TriggerSubmit)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPassFailed, err)
		}
		return nil
	})
	if !stored {
		return nil, nil, err
	}
	if report != nil {
		r = report.Plan.Apply(r)
	}
	return r, report, err
}

func (s *Scheduler) checkStation(ctx context.Context, id uuid.UUID) error {
	stations, err := s.catalog.ListStations(ctx)
	if err != nil {
		return fmt.Errorf("list stations: %w", err)
	}
	for _, gs := range stations {
		if gs.ID == id {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown ground station %s", model.ErrInvalidRequest, id)
}

func (s *Scheduler) checkSatellite(ctx context.Context, id uuid.UUID) error {
	_, err := s.catalog.GetSatellite(ctx, id)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return fmt.Errorf("%w: unknown satellite %s", model.ErrInvalidRequest, id)
	case err != nil:
		return fmt.Errorf("get satellite: %w", err)
	}
	return nil
}

// Delete removes a request and all of its bookings, then reschedules so
// the freed station time can be reused. Errors after the removal is
// committed wrap ErrPassFailed.
func (s *Scheduler) Delete(ctx context.Context, id uuid.UUID) (*Report, error) {
	var report *Report
	err := s.locker.Do(ctx, func(ctx context.Context) error {
		removed, err := s.requests.DeleteRequest(ctx, id)
		if err != nil {
			return err
		}
		s.log.Info(ctx, "request deleted",
			logging.String("request_id", id.String()),
			logging.Int("bookings_removed", len(removed)))
		if s.reserveOnCommit {
			if err := s.release(ctx, removed); err != nil {
				return fmt.Errorf("%w: %w", ErrPassFailed, err)
			}
		}
		report, err = s.reschedule(ctx, TriggerDelete)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPassFailed, err)
		}
		return nil
	})
	return report, err
}

// Reschedule runs one full pass.
func (s *Scheduler) Reschedule(ctx context.Context, trigger string) (*Report, error) {
	var report *Report
	err := s.locker.Do(ctx, func(ctx context.Context) error {
		var err error
		report, err = s.reschedule(ctx, trigger)
		return err
	})
	return report, err
}

// reschedule must run under the lock.
func (s *Scheduler) reschedule(ctx context.Context, trigger string) (*Report, error) {
	passID := uuid.New()
	ctx, span := observability.Tracer().Start(ctx, "scheduler.reschedule",
		trace.WithAttributes(
			attribute.String("pass_id", passID.String()),
			attribute.String("trigger", trigger),
		))
	defer span.End()
	log := s.log.With(logging.String("pass_id", passID.String()), logging.String("trigger", trigger))
	start := s.clock.Now()

	report, err := s.runPass(ctx, passID, trigger, log)
	elapsed := s.clock.Now().Sub(start)
	if err != nil {
		s.metrics.ObservePass(elapsed, false)
		s.metrics.IncCollaboratorFailure(collaboratorName(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error(ctx, "reschedule aborted", logging.Err(err), logging.Duration("elapsed", elapsed))
		return nil, err
	}
	report.Duration = elapsed
	s.metrics.ObservePass(elapsed, true)
	span.SetAttributes(
		attribute.Int("bookings", len(report.Plan.Bookings)),
		attribute.Int("bookings_added", len(report.Diff.Added)),
		attribute.Int("bookings_removed", len(report.Diff.Removed)),
	)

	ev := events.Rescheduled{
		PassID:      passID,
		CommittedAt: s.clock.Now().UTC(),
		Trigger:     trigger,
		Bookings:    len(report.Plan.Bookings),
		Added:       len(report.Diff.Added),
		Removed:     len(report.Diff.Removed),
		Scheduled:   report.Plan.ScheduledIDs(),
	}
	for _, r := range report.Plan.Shortfalls() {
		ev.Shortfalls = append(ev.Shortfalls, r.RequestID)
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Warn(ctx, "publish reschedule event", logging.Err(err))
	}

	log.Info(ctx, "reschedule committed",
		logging.Int("requests", len(report.Plan.Order)),
		logging.Int("bookings", len(report.Plan.Bookings)),
		logging.Int("added", len(report.Diff.Added)),
		logging.Int("removed", len(report.Diff.Removed)),
		logging.Int("shortfalls", len(ev.Shortfalls)),
		logging.Duration("elapsed", elapsed))
	return report, nil
}

func (s *Scheduler) runPass(ctx context.Context, passID uuid.UUID, trigger string, log logging.Logger) (*Report, error) {
	requests, err := s.requests.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	stations, err := s.catalog.ListStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	previous, err := s.bookings.ListBookings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	names := make(map[uuid.UUID]string, len(stations))
	for _, gs := range stations {
		names[gs.ID] = gs.Name
	}
	owned := make(map[string][]model.Interval)
	for _, b := range previous {
		if name, ok := names[b.GroundStationID]; ok {
			owned[name] = append(owned[name], b.Interval())
		}
	}

	opts := []allocator.Option{allocator.WithLogger(log), allocator.WithSlotDuration(s.slot)}
	if s.visibility != nil {
		opts = append(opts, allocator.WithRules(allocator.NewVisibilityRule(s.visibility, s.catalog, s.parallelism, log)))
	}
	if s.exclusionOn {
		opts = append(opts, allocator.WithRules(allocator.NewExclusionRule(s.catalog, s.catalog, s.exclusion)))
	}
	alloc := allocator.New(availability.ExcludeOwned(s.oracle, owned), opts...)

	plan, err := alloc.ScheduleAll(ctx, requests, stations)
	if err != nil {
		return nil, err
	}
	if c, ok := s.visibility.(interface{ HitRatio() float64 }); ok {
		s.metrics.SetPassCacheHitRatio(c.HitRatio())
	}

	byID := make(map[uuid.UUID]model.Request, len(requests))
	updates := make([]store.RequestUpdate, 0, len(requests))
	shortfalls := map[model.Kind]int{}
	for _, r := range requests {
		id := r.Header().ID
		if _, dup := byID[id]; dup {
			continue
		}
		byID[id] = r
		res := plan.Results[id]
		updates = append(updates, store.RequestUpdate{Request: plan.Apply(r), Remaining: res.Remaining, Status: res.Status()})
		if res.Remaining > 0 {
			shortfalls[r.Kind()]++
		}
	}

	var hook store.CommitHook
	if s.reserveOnCommit {
		hook = func(ctx context.Context, diff store.Diff) error {
			var released, reserved []model.Booking
			// The commit rolls back on error, so the oracle is put back to
			// the previous booking set.
			undo := func() {
				ctx := context.WithoutCancel(ctx)
				if err := s.release(ctx, reserved); err != nil {
					log.Error(ctx, "undo reservations after failed commit", logging.Err(err))
				}
				for _, b := range released {
					name := names[b.GroundStationID]
					if err := s.oracle.Reserve(ctx, name, b.Interval(), reservationState(byID[b.RequestID]), b.Mission); err != nil {
						log.Error(ctx, "restore reservation after failed commit",
							logging.String("booking_id", b.ID.String()), logging.Err(err))
					}
				}
			}
			for _, b := range diff.Removed {
				name, ok := names[b.GroundStationID]
				if !ok {
					continue
				}
				if err := s.oracle.Reserve(ctx, name, b.Interval(), availability.StateFree, b.Mission); err != nil {
					undo()
					return fmt.Errorf("release %s at %q: %w", b.ID, name, err)
				}
				released = append(released, b)
			}
			for _, b := range diff.Added {
				name, ok := names[b.GroundStationID]
				if !ok {
					continue
				}
				if err := s.oracle.Reserve(ctx, name, b.Interval(), reservationState(byID[b.RequestID]), b.Mission); err != nil {
					undo()
					return fmt.Errorf("reserve %s at %q: %w", b.ID, name, err)
				}
				reserved = append(reserved, b)
			}
			return nil
		}
	}

	diff, err := s.bookings.CommitPlan(ctx, updates, plan.Bookings, hook)
	if err != nil {
		return nil, fmt.Errorf("commit pass: %w", err)
	}

	s.metrics.SetPlanSize(len(requests), len(plan.Bookings))
	for kind, n := range shortfalls {
		s.metrics.AddShortfalls(string(kind), n)
	}
	return &Report{PassID: passID, Trigger: trigger, Plan: plan, Diff: diff}, nil
}

// release frees the oracle intervals of bookings that no longer exist.
func (s *Scheduler) release(ctx context.Context, bookings []model.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	stations, err := s.catalog.ListStations(ctx)
	if err != nil {
		return fmt.Errorf("list stations: %w", err)
	}
	names := make(map[uuid.UUID]string, len(stations))
	for _, gs := range stations {
		names[gs.ID] = gs.Name
	}
	for _, b := range bookings {
		name, ok := names[b.GroundStationID]
		if !ok {
			continue
		}
		if err := s.oracle.Reserve(ctx, name, b.Interval(), availability.StateFree, b.Mission); err != nil {
			return fmt.Errorf("release %s at %q: %w", b.ID, name, err)
		}
	}
	return nil
}

// reservationState picks the station state a booking occupies. Contacts
// that only need one of the two chains leave the other free.
func reservationState(r model.Request) availability.State {
	c, ok := r.(model.ContactRequest)
	if !ok {
		return availability.StateBothBusy
	}
	switch {
	case c.Science && !c.Telemetry && !c.Uplink:
		return availability.StateScienceBusy
	case !c.Science && (c.Telemetry || c.Uplink):
		return availability.StateTelemetryBusy
	default:
		return availability.StateBothBusy
	}
}

func collaboratorName(err error) string {
	switch {
	case errors.Is(err, core.ErrPropagation):
		return "visibility"
	case errors.Is(err, availability.ErrUnavailable), errors.Is(err, availability.ErrConflict):
		return "availability"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, lock.ErrLockNotAcquired):
		return "context"
	default:
		return "store"
	}
}

// State reports how much of request id is booked.
func (s *Scheduler) State(ctx context.Context, id uuid.UUID) (model.RequestState, error) {
	r, err := s.requests.GetRequest(ctx, id)
	if err != nil {
		return model.RequestState{}, err
	}
	bookings, err := s.bookings.BookingsForRequest(ctx, id)
	if err != nil {
		return model.RequestState{}, err
	}
	var booked time.Duration
	for _, b := range bookings {
		booked += b.End.Sub(b.Start)
	}
	requested := r.Demand()
	remaining := max(requested-booked, 0)
	return model.RequestState{
		RequestID: id,
		Kind:      r.Kind(),
		Scheduled: r.Header().Scheduled,
		Requested: requested,
		Remaining: remaining,
		Status:    model.StatusFor(requested, remaining),
		Bookings:  bookings,
	}, nil
}

// Bookings lists the committed booking set.
func (s *Scheduler) Bookings(ctx context.Context) ([]model.Booking, error) {
	return s.bookings.ListBookings(ctx)
}

// RunPeriodic reschedules every interval until ctx ends. Failed passes
// are logged and retried at the next tick.
func (s *Scheduler) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("periodic interval must be positive, got %s", interval)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(interval):
		}
		if _, err := s.Reschedule(ctx, TriggerPeriodic); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn(ctx, "periodic reschedule failed", logging.Err(err))
		}
	}
}
