package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/signalsfoundry/contact-scheduler/model"
)

var t0 = time.Date(2025, 1, 21, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := New(db)
	tick := t0
	s.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func rfRequest(mission string) model.RFRequest {
	return model.RFRequest{
		RequestBase: model.RequestBase{
			ID:          uuid.New(),
			Mission:     mission,
			SatelliteID: uuid.New(),
			StartTime:   t0,
			EndTime:     t0.Add(time.Hour),
			Priority:    2,
		},
		UplinkTime:   10 * time.Minute,
		DownlinkTime: 5 * time.Minute,
		ScienceTime:  time.Minute,
		MinPasses:    1,
	}
}

func contactRequest(mission string, gs uuid.UUID) model.ContactRequest {
	return model.ContactRequest{
		RequestBase: model.RequestBase{
			ID:          uuid.New(),
			Mission:     mission,
			SatelliteID: uuid.New(),
			StartTime:   t0,
			EndTime:     t0.Add(time.Hour),
		},
		GroundStationID: gs,
		Orbit:           "12345",
		Uplink:          true,
		Telemetry:       true,
		AOS:             t0.Add(time.Minute),
		LOS:             t0.Add(20 * time.Minute),
		Duration:        15 * time.Minute,
	}
}

func booking(req model.Request, gs uuid.UUID, from, to time.Duration) model.Booking {
	h := req.Header()
	return model.Booking{
		ID:              uuid.NewSHA1(uuid.NameSpaceOID, []byte(h.ID.String()+gs.String()+from.String())),
		RequestID:       h.ID,
		GroundStationID: gs,
		Start:           t0.Add(from),
		End:             t0.Add(to),
		SatelliteID:     h.SatelliteID,
		Mission:         h.Mission,
		Kind:            req.Kind(),
	}
}

func TestSaveAndGetRequestRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rf := rfRequest("SCISAT")
	c := contactRequest("NEOSSAT", uuid.New())
	for _, r := range []model.Request{rf, c} {
		if err := s.SaveRequest(ctx, r); err != nil {
			t.Fatalf("SaveRequest: %v", err)
		}
	}

	got, err := s.GetRequest(ctx, rf.ID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	gotRF, ok := got.(model.RFRequest)
	if !ok {
		t.Fatalf("GetRequest returned %T, want RFRequest", got)
	}
	if gotRF.UplinkTime != rf.UplinkTime || gotRF.MinPasses != 1 || !gotRF.EndTime.Equal(rf.EndTime) || gotRF.GroundStationID != nil {
		t.Fatalf("RF round trip = %+v, want %+v", gotRF, rf)
	}

	got, err = s.GetRequest(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	gotC := got.(model.ContactRequest)
	if gotC.GroundStationID != c.GroundStationID || gotC.Duration != c.Duration || !gotC.AOS.Equal(c.AOS) || !gotC.RFOn.IsZero() {
		t.Fatalf("contact round trip = %+v, want %+v", gotC, c)
	}

	if _, err := s.GetRequest(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetRequest(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListPendingKeepsSubmissionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []uuid.UUID
	for _, m := range []string{"c", "a", "b"} {
		r := rfRequest(m)
		ids = append(ids, r.ID)
		if err := s.SaveRequest(ctx, r); err != nil {
			t.Fatalf("SaveRequest: %v", err)
		}
	}
	// Re-saving must not move a request to the back.
	first, _ := s.GetRequest(ctx, ids[0])
	if err := s.SaveRequest(ctx, model.WithScheduled(first, true)); err != nil {
		t.Fatalf("SaveRequest(update): %v", err)
	}

	got, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, r := range got {
		if r.Header().ID != ids[i] {
			t.Fatalf("ListPending[%d] = %s, want %s", i, r.Header().ID, ids[i])
		}
	}
	if !got[0].Header().Scheduled {
		t.Fatalf("update lost")
	}
}

func TestCommitPlanReplacesBookings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	gs := uuid.New()
	r := rfRequest("SCISAT")
	if err := s.SaveRequest(ctx, r); err != nil {
		t.Fatalf("SaveRequest: %v", err)
	}

	b1 := booking(r, gs, 0, 15*time.Minute)
	assigned := r
	assigned.Scheduled = false
	assigned.GroundStationID = &gs
	diff, err := s.CommitPlan(ctx, []RequestUpdate{{Request: assigned, Remaining: 5 * time.Minute, Status: model.StatusPartiallyBooked}}, []model.Booking{b1}, nil)
	if err != nil {
		t.Fatalf("CommitPlan: %v", err)
	}
	if len(diff.Added) != 1 || len(diff.Removed) != 0 {
		t.Fatalf("diff = %+v, want one added", diff)
	}
	created := diff.Added[0].CreatedAt

	b2 := booking(r, gs, 15*time.Minute, 25*time.Minute)
	assigned.Scheduled = true
	diff, err = s.CommitPlan(ctx, []RequestUpdate{{Request: assigned, Status: model.StatusScheduled}}, []model.Booking{b1, b2}, nil)
	if err != nil {
		t.Fatalf("CommitPlan: %v", err)
	}
	if len(diff.Kept) != 1 || len(diff.Added) != 1 {
		t.Fatalf("diff = %+v, want one kept and one added", diff)
	}
	if !diff.Kept[0].CreatedAt.Equal(created) {
		t.Fatalf("kept booking CreatedAt = %v, want %v", diff.Kept[0].CreatedAt, created)
	}

	got, err := s.BookingsForRequest(ctx, r.ID)
	if err != nil || len(got) != 2 {
		t.Fatalf("BookingsForRequest = %v, %v, want 2 bookings", got, err)
	}
	stored, _ := s.GetRequest(ctx, r.ID)
	if rf := stored.(model.RFRequest); !rf.Scheduled || rf.GroundStationID == nil || *rf.GroundStationID != gs {
		t.Fatalf("stored request = %+v, want scheduled at %s", rf, gs)
	}
	if status, remaining, err := s.RequestStatus(ctx, r.ID); err != nil || status != model.StatusScheduled || remaining != 0 {
		t.Fatalf("RequestStatus = %q %v %v", status, remaining, err)
	}

	diff, err = s.CommitPlan(ctx, nil, []model.Booking{b2}, nil)
	if err != nil {
		t.Fatalf("CommitPlan: %v", err)
	}
	if len(diff.Removed) != 1 || diff.Removed[0].ID != b1.ID {
		t.Fatalf("diff.Removed = %+v, want b1", diff.Removed)
	}
}

func TestCommitPlanHookErrorRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	gs := uuid.New()
	r := rfRequest("SCISAT")
	_ = s.SaveRequest(ctx, r)

	boom := errors.New("reserve failed")
	_, err := s.CommitPlan(ctx, nil, []model.Booking{booking(r, gs, 0, time.Minute)}, func(context.Context, Diff) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("CommitPlan error = %v, want hook error", err)
	}
	if got, _ := s.ListBookings(ctx); len(got) != 0 {
		t.Fatalf("bookings after rollback = %v, want none", got)
	}
}

func TestCommitPlanRejectsDoubleBooking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	gs := uuid.New()
	a, b := rfRequest("a"), rfRequest("b")

	_, err := s.CommitPlan(ctx, nil, []model.Booking{booking(a, gs, 0, time.Minute), booking(b, gs, 0, time.Minute)}, nil)
	if err == nil {
		t.Fatalf("expected unique index violation for identical station interval")
	}
}

func TestDeleteRequestCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	gs := uuid.New()
	a, b := rfRequest("a"), rfRequest("b")
	_ = s.SaveRequest(ctx, a)
	_ = s.SaveRequest(ctx, b)
	if _, err := s.CommitPlan(ctx, nil, []model.Booking{booking(a, gs, 0, time.Minute), booking(b, gs, time.Minute, 2*time.Minute)}, nil); err != nil {
		t.Fatalf("CommitPlan: %v", err)
	}

	removed, err := s.DeleteRequest(ctx, a.ID)
	if err != nil {
		t.Fatalf("DeleteRequest: %v", err)
	}
	if len(removed) != 1 || removed[0].RequestID != a.ID {
		t.Fatalf("removed = %+v, want a's booking", removed)
	}
	left, _ := s.ListBookings(ctx)
	if len(left) != 1 || left[0].RequestID != b.ID {
		t.Fatalf("remaining bookings = %+v, want only b's", left)
	}
	if _, err := s.DeleteRequest(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second DeleteRequest error = %v, want ErrNotFound", err)
	}
}

func TestCatalog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inuvik := model.GroundStation{ID: uuid.New(), Name: "Inuvik NorthWest", Lat: 68.3195, Lon: -133.549, Height: 102.5, Mask: 5}
	pa := model.GroundStation{ID: uuid.New(), Name: "Prince Albert", Lat: 53.2124, Lon: -105.934, Height: 490.3, Mask: 5}
	for _, gs := range []model.GroundStation{inuvik, pa} {
		if err := s.CreateStation(ctx, gs); err != nil {
			t.Fatalf("CreateStation: %v", err)
		}
	}
	dup := model.GroundStation{ID: uuid.New(), Name: "Prince Albert"}
	if err := s.CreateStation(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate station error = %v, want ErrDuplicate", err)
	}
	stations, err := s.ListStations(ctx)
	if err != nil || len(stations) != 2 || stations[0].ID != inuvik.ID || stations[1].Height != 490.3 {
		t.Fatalf("ListStations = %+v, %v", stations, err)
	}

	sat := model.Satellite{ID: uuid.New(), Name: "SCISAT 1", TLE: "l1\nl2"}
	other := model.Satellite{ID: uuid.New(), Name: "NEOSSAT"}
	for _, x := range []model.Satellite{sat, other} {
		if err := s.CreateSatellite(ctx, x); err != nil {
			t.Fatalf("CreateSatellite: %v", err)
		}
	}
	if got, err := s.GetSatellite(ctx, sat.ID); err != nil || got.TLE != sat.TLE {
		t.Fatalf("GetSatellite = %+v, %v", got, err)
	}

	cone := model.ExclusionCone{ID: uuid.New(), AngleLimit: 10, SatelliteID: sat.ID, InterferingSatellite: other.ID, GroundStationID: pa.ID}
	if err := s.CreateExclusionCone(ctx, cone); err != nil {
		t.Fatalf("CreateExclusionCone: %v", err)
	}
	bad := cone
	bad.ID = uuid.New()
	bad.InterferingSatellite = uuid.New()
	if err := s.CreateExclusionCone(ctx, bad); !errors.Is(err, model.ErrInvalidRequest) {
		t.Fatalf("cone with unknown satellite error = %v, want ErrInvalidRequest", err)
	}

	cones, err := s.ListExclusionCones(ctx, pa.ID)
	if err != nil || len(cones) != 1 || cones[0].AngleLimit != 10 {
		t.Fatalf("ListExclusionCones = %+v, %v", cones, err)
	}
	if cones, _ := s.ListExclusionCones(ctx, inuvik.ID); len(cones) != 0 {
		t.Fatalf("cones at Inuvik = %+v, want none", cones)
	}

	st, sa, co, err := s.CatalogCounts(ctx)
	if err != nil || st != 2 || sa != 2 || co != 1 {
		t.Fatalf("CatalogCounts = %d %d %d %v, want 2 2 1", st, sa, co, err)
	}
}
