package model

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var t0 = time.Date(2025, 1, 21, 10, 0, 0, 0, time.UTC)

func validRF() RFRequest {
	return RFRequest{
		RequestBase: RequestBase{
			ID:          uuid.New(),
			Mission:     "SCISAT",
			SatelliteID: uuid.New(),
			StartTime:   t0,
			EndTime:     t0.Add(time.Hour),
		},
		UplinkTime:   300 * time.Second,
		DownlinkTime: 1200 * time.Second,
		ScienceTime:  600 * time.Second,
		MinPasses:    1,
	}
}

func validContact() ContactRequest {
	return ContactRequest{
		RequestBase: RequestBase{
			ID:          uuid.New(),
			Mission:     "NEOSSAT",
			SatelliteID: uuid.New(),
			StartTime:   t0,
			EndTime:     t0.Add(30 * time.Minute),
		},
		GroundStationID: uuid.New(),
		Duration:        20 * time.Minute,
	}
}

func TestRFRequestDemandIsMaxComponent(t *testing.T) {
	r := validRF()
	if got := r.Demand(); got != 1200*time.Second {
		t.Fatalf("Demand() = %v, want %v", got, 1200*time.Second)
	}
	r.ScienceTime = 2 * time.Hour
	if got := r.Demand(); got != 2*time.Hour {
		t.Fatalf("Demand() = %v, want %v", got, 2*time.Hour)
	}
}

func TestRequestValidate(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		ok   bool
	}{
		{name: "rf ok", req: validRF(), ok: true},
		{name: "contact ok", req: validContact(), ok: true},
		{name: "rf reversed window", req: func() Request {
			r := validRF()
			r.StartTime, r.EndTime = r.EndTime, r.StartTime
			return r
		}()},
		{name: "rf empty window", req: func() Request {
			r := validRF()
			r.EndTime = r.StartTime
			return r
		}()},
		{name: "rf negative uplink", req: func() Request {
			r := validRF()
			r.UplinkTime = -time.Second
			return r
		}()},
		{name: "rf fractional science", req: func() Request {
			r := validRF()
			r.ScienceTime = 90*time.Second + 250*time.Millisecond
			return r
		}()},
		{name: "rf fractional downlink", req: func() Request {
			r := validRF()
			r.DownlinkTime = 500 * time.Millisecond
			return r
		}()},
		{name: "rf zero passes", req: func() Request {
			r := validRF()
			r.MinPasses = 0
			return r
		}()},
		{name: "missing mission", req: func() Request {
			r := validRF()
			r.Mission = ""
			return r
		}()},
		{name: "contact longer than window", req: func() Request {
			c := validContact()
			c.Duration = time.Hour
			return c
		}()},
		{name: "contact fractional seconds", req: func() Request {
			c := validContact()
			c.Duration = 1500 * time.Millisecond
			return c
		}()},
		{name: "contact without station", req: func() Request {
			c := validContact()
			c.GroundStationID = uuid.Nil
			return c
		}()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.ok && err != nil {
				t.Fatalf("Validate() error = %v, want nil", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("Validate() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestWithScheduledReturnsCopy(t *testing.T) {
	orig := validContact()
	updated := WithScheduled(orig, true)
	if orig.Scheduled {
		t.Fatalf("original request mutated")
	}
	if !updated.Header().Scheduled {
		t.Fatalf("updated request Scheduled = false, want true")
	}
	if updated.Kind() != KindContact {
		t.Fatalf("Kind() = %q, want %q", updated.Kind(), KindContact)
	}
}

func TestIntervalOverlaps(t *testing.T) {
	a := Interval{Start: t0, End: t0.Add(15 * time.Minute)}
	b := Interval{Start: t0.Add(15 * time.Minute), End: t0.Add(30 * time.Minute)}
	c := Interval{Start: t0.Add(10 * time.Minute), End: t0.Add(20 * time.Minute)}

	if a.Overlaps(b) {
		t.Fatalf("touching intervals reported as overlapping")
	}
	if !a.Overlaps(c) || !c.Overlaps(b) {
		t.Fatalf("expected %v to overlap both neighbours", c)
	}
	if !(Interval{Start: t0, End: t0.Add(time.Hour)}).Contains(c) {
		t.Fatalf("expected hour window to contain %v", c)
	}
}

func TestIntervalIntersect(t *testing.T) {
	slot := Interval{Start: t0, End: t0.Add(15 * time.Minute)}
	pass := Interval{Start: t0.Add(9 * time.Minute), End: t0.Add(20 * time.Minute)}

	got, ok := slot.Intersect(pass)
	want := Interval{Start: t0.Add(9 * time.Minute), End: t0.Add(15 * time.Minute)}
	if !ok || !got.Equal(want) {
		t.Fatalf("Intersect() = %v, %v, want %v, true", got, ok, want)
	}
	if _, ok := slot.Intersect(Interval{Start: slot.End, End: slot.End.Add(time.Minute)}); ok {
		t.Fatalf("Intersect() of touching intervals reported non-empty")
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		requested, remaining time.Duration
		want                 Status
	}{
		{time.Hour, time.Hour, StatusUnscheduled},
		{time.Hour, time.Minute, StatusPartiallyBooked},
		{time.Hour, 0, StatusScheduled},
		{0, 0, StatusScheduled},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.requested, tc.remaining); got != tc.want {
			t.Fatalf("StatusFor(%v, %v) = %q, want %q", tc.requested, tc.remaining, got, tc.want)
		}
	}
}

func TestSatelliteElementLines(t *testing.T) {
	s := Satellite{Name: "SCISAT 1", TLE: "SCISAT 1\nline-one\nline-two\n"}
	l1, l2, err := s.ElementLines()
	if err != nil {
		t.Fatalf("ElementLines error: %v", err)
	}
	if l1 != "line-one" || l2 != "line-two" {
		t.Fatalf("ElementLines = %q, %q", l1, l2)
	}

	s.TLE = "only one line"
	if _, _, err := s.ElementLines(); !errors.Is(err, ErrInvalidTLE) {
		t.Fatalf("ElementLines error = %v, want ErrInvalidTLE", err)
	}
}
