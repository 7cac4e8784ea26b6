package allocator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/contact-scheduler/model"
)

var t0 = time.Date(2025, 1, 21, 10, 0, 0, 0, time.UTC)

const testTLE = "SCISAT 1\n" +
	"1 27858U 03036A   24271.51787419  .00002340  00000+0  31635-3 0  9999\n" +
	"2 27858  73.9336 337.0907 0007403 194.1129 165.9841 14.79656508138550"

func mins(n int) time.Duration { return time.Duration(n) * time.Minute }

// fakeAvailability reports configured busy intervals per station name.
type fakeAvailability struct {
	mu    sync.Mutex
	busy  map[string][]model.Interval
	err   error
	calls int
}

func (f *fakeAvailability) QueryBusy(_ context.Context, station string, start, end time.Time) ([]model.Interval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	q := model.Interval{Start: start, End: end}
	var out []model.Interval
	for _, b := range f.busy[station] {
		if b.Overlaps(q) {
			out = append(out, b)
		}
	}
	return out, nil
}

func free() *fakeAvailability { return &fakeAvailability{} }

func station(name string) model.GroundStation {
	return model.GroundStation{ID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)), Name: name}
}

func contact(name string, gs model.GroundStation, start time.Time, window, duration time.Duration) model.ContactRequest {
	return model.ContactRequest{
		RequestBase: model.RequestBase{
			ID:          uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)),
			Mission:     name,
			SatelliteID: uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name)),
			StartTime:   start,
			EndTime:     start.Add(window),
		},
		GroundStationID: gs.ID,
		Duration:        duration,
	}
}

func rf(name string, start time.Time, window, up, down, sci time.Duration) model.RFRequest {
	return model.RFRequest{
		RequestBase: model.RequestBase{
			ID:          uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)),
			Mission:     name,
			SatelliteID: uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name)),
			StartTime:   start,
			EndTime:     start.Add(window),
		},
		UplinkTime:   up,
		DownlinkTime: down,
		ScienceTime:  sci,
		MinPasses:    1,
	}
}

// staticRule allows or rejects by a function of the candidate.
type staticRule struct {
	name  string
	allow func(Candidate) (bool, error)
}

func (r staticRule) Name() string { return r.name }

func (r staticRule) Allow(_ context.Context, c Candidate) (bool, error) { return r.allow(c) }

type fakeSatellites map[uuid.UUID]model.Satellite

func (f fakeSatellites) GetSatellite(_ context.Context, id uuid.UUID) (model.Satellite, error) {
	s, ok := f[id]
	if !ok {
		return model.Satellite{}, fmt.Errorf("satellite %s: %w", id, model.ErrNotFound)
	}
	return s, nil
}

type fakeCones []model.ExclusionCone

func (f fakeCones) ListExclusionCones(_ context.Context, stationID uuid.UUID) ([]model.ExclusionCone, error) {
	var out []model.ExclusionCone
	for _, c := range f {
		if c.GroundStationID == stationID {
			out = append(out, c)
		}
	}
	return out, nil
}

// fakeOracle returns fixed passes for any satellite and station.
type fakeOracle struct {
	mu     sync.Mutex
	passes []model.Interval
	calls  int
}

func (f *fakeOracle) FindPasses(_ context.Context, sat model.Satellite, gs model.GroundStation, w model.Interval) ([]model.Pass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var out []model.Pass
	for _, p := range f.passes {
		if p.Overlaps(w) {
			out = append(out, model.Pass{StationID: gs.ID, SatelliteID: sat.ID, Rise: p.Start, Set: p.End})
		}
	}
	return out, nil
}

type fakeExclusion struct {
	windows []model.Interval
}

func (f fakeExclusion) Windows(context.Context, model.ExclusionCone, model.Satellite, model.Satellite, model.GroundStation, model.Interval) ([]model.Interval, error) {
	return f.windows, nil
}
