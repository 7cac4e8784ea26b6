package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/contact-scheduler/core"
	"github.com/signalsfoundry/contact-scheduler/internal/availability"
	"github.com/signalsfoundry/contact-scheduler/internal/events"
	"github.com/signalsfoundry/contact-scheduler/internal/store"
	"github.com/signalsfoundry/contact-scheduler/kb"
	"github.com/signalsfoundry/contact-scheduler/model"
	"github.com/signalsfoundry/contact-scheduler/timectrl"
)

var (
	t0     = time.Date(2025, 1, 21, 10, 0, 0, 0, time.UTC)
	scisat = kb.DemoSatellites()[0]
)

type harness struct {
	sched   *Scheduler
	store   *store.Store
	catalog *kb.Catalog
	oracle  *availability.Memory
	events  *events.Memory
	s1, s2  model.GroundStation
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	st, err := store.Connect(store.Config{Backend: store.BackendSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	h := &harness{
		store:   st,
		catalog: kb.NewCatalog(),
		oracle:  availability.NewMemory(),
		events:  &events.Memory{},
		s1:      model.GroundStation{ID: uuid.New(), Name: "Prince Albert", Lat: 53.2124, Lon: -105.934, Height: 490.3, Mask: 5},
		s2:      model.GroundStation{ID: uuid.New(), Name: "Gatineau Quebec", Lat: 45.5846, Lon: -75.8083, Height: 240.1, Mask: 5},
	}
	for _, gs := range []model.GroundStation{h.s1, h.s2} {
		if err := h.catalog.AddStation(gs); err != nil {
			t.Fatalf("AddStation: %v", err)
		}
	}
	if err := h.catalog.AddSatellite(scisat); err != nil {
		t.Fatalf("AddSatellite: %v", err)
	}
	opts = append([]Option{WithPublisher(h.events)}, opts...)
	h.sched = New(st, st, h.catalog, h.oracle, opts...)
	return h
}

func contact(gs model.GroundStation, mission string, window, d time.Duration) model.ContactRequest {
	return model.ContactRequest{
		RequestBase: model.RequestBase{
			Mission:     mission,
			SatelliteID: scisat.ID,
			StartTime:   t0,
			EndTime:     t0.Add(window),
		},
		GroundStationID: gs.ID,
		Telemetry:       true,
		Science:         true,
		Duration:        d,
	}
}

func rf(mission string, window, d time.Duration) model.RFRequest {
	return model.RFRequest{
		RequestBase: model.RequestBase{
			Mission:     mission,
			SatelliteID: scisat.ID,
			StartTime:   t0,
			EndTime:     t0.Add(window),
		},
		UplinkTime: d,
		MinPasses:  1,
	}
}

func TestSubmitSchedulesAndReportsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	got, report, err := h.sched.Submit(ctx, contact(h.s1, "SCISAT", time.Hour, 30*time.Minute))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	id := got.Header().ID
	if id == uuid.Nil || !got.Header().Scheduled {
		t.Fatalf("Submit returned %+v, want id assigned and scheduled", got.Header())
	}
	if len(report.Plan.Bookings) != 2 || len(report.Diff.Added) != 2 {
		t.Fatalf("report bookings=%d added=%d, want 2/2", len(report.Plan.Bookings), len(report.Diff.Added))
	}

	state, err := h.sched.State(ctx, id)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Status != model.StatusScheduled || state.Remaining != 0 || len(state.Bookings) != 2 || !state.Scheduled {
		t.Fatalf("State = %+v, want scheduled with 2 bookings", state)
	}

	evs := h.events.Events()
	if len(evs) != 1 || evs[0].Trigger != TriggerSubmit || evs[0].Bookings != 2 {
		t.Fatalf("events = %+v, want one submit event with 2 bookings", evs)
	}
}

func TestSubmitRejectsInvalid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bad := contact(h.s1, "", time.Hour, time.Minute)
	if _, _, err := h.sched.Submit(ctx, bad); !errors.Is(err, model.ErrInvalidRequest) {
		t.Fatalf("Submit(no mission) error = %v, want ErrInvalidRequest", err)
	}
	unknown := contact(model.GroundStation{ID: uuid.New()}, "X", time.Hour, time.Minute)
	if _, _, err := h.sched.Submit(ctx, unknown); !errors.Is(err, model.ErrInvalidRequest) {
		t.Fatalf("Submit(unknown station) error = %v, want ErrInvalidRequest", err)
	}
	noSat := rf("X", time.Hour, time.Minute)
	noSat.SatelliteID = uuid.New()
	if _, _, err := h.sched.Submit(ctx, noSat); !errors.Is(err, model.ErrInvalidRequest) {
		t.Fatalf("Submit(unknown satellite) error = %v, want ErrInvalidRequest", err)
	}
	if pending, _ := h.store.ListPending(ctx); len(pending) != 0 {
		t.Fatalf("invalid requests were stored: %v", pending)
	}
}

func TestUnknownSatelliteDoesNotBlockVisibilityPasses(t *testing.T) {
	h := newHarness(t, WithVisibility(core.NewPassFinder(), 2))
	ctx := context.Background()

	bad := rf("RF", time.Hour, 15*time.Minute)
	bad.SatelliteID = uuid.New()
	stored, _, err := h.sched.Submit(ctx, bad)
	if !errors.Is(err, model.ErrInvalidRequest) || stored != nil {
		t.Fatalf("Submit(unknown satellite) = %v, %v, want nil, ErrInvalidRequest", stored, err)
	}

	got, _, err := h.sched.Submit(ctx, contact(h.s1, "SCISAT", time.Hour, 15*time.Minute))
	if err != nil {
		t.Fatalf("Submit(contact) error = %v, want nil", err)
	}
	if !got.Header().Scheduled {
		t.Fatalf("contact scheduled = false, want true")
	}
	if b, _ := h.sched.Bookings(ctx); len(b) != 1 {
		t.Fatalf("bookings = %d, want 1", len(b))
	}
}

func TestDeleteFreesStationTime(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	early, _, err := h.sched.Submit(ctx, contact(h.s1, "early", 30*time.Minute, 30*time.Minute))
	if err != nil {
		t.Fatalf("Submit early: %v", err)
	}
	late, _, err := h.sched.Submit(ctx, contact(h.s1, "late", 45*time.Minute, 30*time.Minute))
	if err != nil {
		t.Fatalf("Submit late: %v", err)
	}
	state, _ := h.sched.State(ctx, late.Header().ID)
	if state.Status != model.StatusPartiallyBooked {
		t.Fatalf("late status = %q, want partially_booked", state.Status)
	}

	if _, err := h.sched.Delete(ctx, early.Header().ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := h.sched.State(ctx, early.Header().ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("State(deleted) error = %v, want ErrNotFound", err)
	}
	bookings, _ := h.sched.Bookings(ctx)
	for _, b := range bookings {
		if b.RequestID == early.Header().ID {
			t.Fatalf("booking %s of deleted request survived", b.ID)
		}
	}
	state, _ = h.sched.State(ctx, late.Header().ID)
	if state.Status != model.StatusScheduled {
		t.Fatalf("late status after delete = %q, want scheduled", state.Status)
	}

	if _, err := h.sched.Delete(ctx, early.Header().ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestReserveOnCommitIsStableAcrossPasses(t *testing.T) {
	h := newHarness(t, WithReserveOnCommit(true))
	ctx := context.Background()

	req, _, err := h.sched.Submit(ctx, contact(h.s1, "SCISAT", time.Hour, 20*time.Minute))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	windows := h.oracle.Windows(h.s1.Name)
	if len(windows) != 2 {
		t.Fatalf("reserved windows = %+v, want 2", windows)
	}
	if windows[0].State != availability.StateBothBusy || windows[0].Mission != "SCISAT" {
		t.Fatalf("reserved window = %+v, want both_busy for SCISAT", windows[0])
	}

	report, err := h.sched.Reschedule(ctx, TriggerManual)
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if len(report.Diff.Kept) != 2 || len(report.Diff.Added) != 0 || len(report.Diff.Removed) != 0 {
		t.Fatalf("diff = kept %d added %d removed %d, want 2/0/0", len(report.Diff.Kept), len(report.Diff.Added), len(report.Diff.Removed))
	}

	if _, err := h.sched.Delete(ctx, req.Header().ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if w := h.oracle.Windows(h.s1.Name); len(w) != 0 {
		t.Fatalf("windows after delete = %+v, want none", w)
	}
}

// reserveFailing rejects busy reservations for one mission.
type reserveFailing struct {
	*availability.Memory
	mission string
}

func (f reserveFailing) Reserve(ctx context.Context, station string, iv model.Interval, state availability.State, mission string) error {
	if state.Busy() && mission == f.mission {
		return errors.New("boom")
	}
	return f.Memory.Reserve(ctx, station, iv, state, mission)
}

func TestFailedReserveRestoresReleasedBookings(t *testing.T) {
	h := newHarness(t, WithReserveOnCommit(true))
	ctx := context.Background()
	h.sched.oracle = reserveFailing{Memory: h.oracle, mission: "B"}

	if _, _, err := h.sched.Submit(ctx, contact(h.s1, "A", time.Hour, 15*time.Minute)); err != nil {
		t.Fatalf("Submit A: %v", err)
	}
	want := model.Interval{Start: t0, End: t0.Add(15 * time.Minute)}

	// B has the earlier deadline and takes A's slot, but B cannot be reserved.
	b, _, err := h.sched.Submit(ctx, contact(h.s1, "B", 30*time.Minute, 15*time.Minute))
	if !errors.Is(err, ErrPassFailed) || b == nil {
		t.Fatalf("Submit B = %v, %v, want stored request and ErrPassFailed", b, err)
	}

	bookings, _ := h.sched.Bookings(ctx)
	if len(bookings) != 1 || !bookings[0].Interval().Equal(want) {
		t.Fatalf("bookings = %+v, want A at %v", bookings, want)
	}
	windows := h.oracle.Windows(h.s1.Name)
	if len(windows) != 1 || !windows[0].Interval().Equal(want) || windows[0].Mission != "A" || windows[0].State != availability.StateBothBusy {
		t.Fatalf("oracle windows = %+v, want A both_busy at %v", windows, want)
	}

	if _, err := h.sched.Delete(ctx, b.Header().ID); err != nil {
		t.Fatalf("Delete B: %v", err)
	}
	bookings, _ = h.sched.Bookings(ctx)
	windows = h.oracle.Windows(h.s1.Name)
	if len(bookings) != len(windows) {
		t.Fatalf("bookings = %d, oracle windows = %d, want equal", len(bookings), len(windows))
	}
	for i := range bookings {
		if !bookings[i].Interval().Equal(windows[i].Interval()) {
			t.Fatalf("booking %v, window %v, want equal", bookings[i].Interval(), windows[i].Interval())
		}
	}
}

func TestExternalBusyIsRespected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.oracle.Reserve(ctx, h.s1.Name, model.Interval{Start: t0, End: t0.Add(time.Hour)}, availability.StateScienceBusy, "other"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	got, _, err := h.sched.Submit(ctx, rf("RF", time.Hour, 15*time.Minute))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	r := got.(model.RFRequest)
	if !r.Scheduled || r.GroundStationID == nil || *r.GroundStationID != h.s2.ID {
		t.Fatalf("RF request = %+v, want scheduled at %s", r, h.s2.Name)
	}
}

type failingOracle struct{ availability.Oracle }

func (failingOracle) QueryBusy(context.Context, string, time.Time, time.Time) ([]model.Interval, error) {
	return nil, availability.ErrUnavailable
}

func TestOracleFailureAbortsWithoutCommit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.sched.oracle = failingOracle{}

	stored, _, err := h.sched.Submit(ctx, contact(h.s1, "SCISAT", time.Hour, 15*time.Minute))
	if !errors.Is(err, availability.ErrUnavailable) || !errors.Is(err, ErrPassFailed) {
		t.Fatalf("Submit error = %v, want ErrUnavailable and ErrPassFailed", err)
	}
	if stored == nil {
		t.Fatalf("Submit returned nil request for a stored request")
	}
	pending, _ := h.store.ListPending(ctx)
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want the submitted request kept", len(pending))
	}
	if b, _ := h.sched.Bookings(ctx); len(b) != 0 {
		t.Fatalf("bookings = %v, want none", b)
	}
	if evs := h.events.Events(); len(evs) != 0 {
		t.Fatalf("events = %+v, want none for aborted pass", evs)
	}

	// The next successful pass places the kept request.
	h.sched.oracle = h.oracle
	if _, err := h.sched.Reschedule(ctx, TriggerManual); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if b, _ := h.sched.Bookings(ctx); len(b) != 1 {
		t.Fatalf("bookings after recovery = %d, want 1", len(b))
	}

	h.sched.oracle = failingOracle{}
	if _, err := h.sched.Delete(ctx, stored.Header().ID); !errors.Is(err, ErrPassFailed) {
		t.Fatalf("Delete error = %v, want ErrPassFailed", err)
	}
	if _, err := h.store.GetRequest(ctx, stored.Header().ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetRequest after delete error = %v, want ErrNotFound", err)
	}
}

func TestConcurrentSubmitsNeverDoubleBook(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := h.sched.Submit(ctx, rf("RF", 2*time.Hour, time.Duration(20+5*i)*time.Minute))
			if err != nil {
				t.Errorf("Submit: %v", err)
			}
		}()
	}
	wg.Wait()

	bookings, err := h.sched.Bookings(ctx)
	if err != nil {
		t.Fatalf("Bookings: %v", err)
	}
	for i, a := range bookings {
		for _, b := range bookings[i+1:] {
			if a.GroundStationID == b.GroundStationID && a.Interval().Overlaps(b.Interval()) {
				t.Fatalf("bookings %v and %v overlap", a.Interval(), b.Interval())
			}
		}
	}
}

func TestRunPeriodic(t *testing.T) {
	clock := timectrl.NewManual(t0)
	h := newHarness(t, WithClock(clock))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.sched.RunPeriodic(ctx, time.Minute) }()

	waitFor(t, func() bool { return clock.Pending() == 1 })
	clock.Advance(time.Minute)
	waitFor(t, func() bool { return len(h.events.Events()) == 1 })

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("RunPeriodic error = %v, want context.Canceled", err)
	}
	if evs := h.events.Events(); evs[0].Trigger != TriggerPeriodic {
		t.Fatalf("trigger = %q, want periodic", evs[0].Trigger)
	}
	if err := h.sched.RunPeriodic(context.Background(), 0); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestReservationState(t *testing.T) {
	cases := []struct {
		name string
		req  model.Request
		want availability.State
	}{
		{"rf", model.RFRequest{}, availability.StateBothBusy},
		{"science only", model.ContactRequest{Science: true}, availability.StateScienceBusy},
		{"telemetry only", model.ContactRequest{Telemetry: true}, availability.StateTelemetryBusy},
		{"both", model.ContactRequest{Telemetry: true, Science: true}, availability.StateBothBusy},
	}
	for _, tc := range cases {
		if got := reservationState(tc.req); got != tc.want {
			t.Fatalf("%s: reservationState = %q, want %q", tc.name, got, tc.want)
		}
	}
}
