package core

import (
	"context"
	"time"

	"github.com/signalsfoundry/contact-scheduler/model"
)

const (
	// DefaultCoarseStep is the sampling interval used to detect passes.
	DefaultCoarseStep = 30 * time.Second
	// DefaultFineStep is the resolution of rise/set refinement.
	DefaultFineStep = time.Second
)

// VisibilityOracle answers when a satellite is above a station's mask.
type VisibilityOracle interface {
	FindPasses(ctx context.Context, sat model.Satellite, gs model.GroundStation, window model.Interval) ([]model.Pass, error)
}

// PassFinder is a VisibilityOracle backed by SGP4 propagation. Passes are
// found with a coarse elevation scan and refined to FineStep.
type PassFinder struct {
	CoarseStep time.Duration
	FineStep   time.Duration
}

// NewPassFinder returns a PassFinder with the default steps.
func NewPassFinder() *PassFinder {
	return &PassFinder{CoarseStep: DefaultCoarseStep, FineStep: DefaultFineStep}
}

// FindPasses returns the passes of sat over gs within window, ordered by
// rise and truncated to the window. A satellite already above the mask at
// window.Start rises at window.Start.
func (f *PassFinder) FindPasses(ctx context.Context, sat model.Satellite, gs model.GroundStation, window model.Interval) ([]model.Pass, error) {
	if !window.Valid() {
		return nil, nil
	}
	prop, err := NewPropagator(sat)
	if err != nil {
		return nil, err
	}
	obs := NewObserver(gs.Lat, gs.Lon, gs.Height)

	coarse, fine := f.CoarseStep, f.FineStep
	if coarse <= 0 {
		coarse = DefaultCoarseStep
	}
	if fine <= 0 || fine > coarse {
		fine = DefaultFineStep
	}

	elevation := func(t time.Time) (float64, error) {
		look, _, err := prop.LookFrom(obs, t)
		if err != nil {
			return 0, err
		}
		return look.ElevationDeg, nil
	}

	var (
		passes []model.Pass
		cur    *model.Pass
	)

	prevT := window.Start
	prevEl, err := elevation(prevT)
	if err != nil {
		return nil, err
	}
	if prevEl > gs.Mask {
		cur = &model.Pass{StationID: gs.ID, SatelliteID: sat.ID, Rise: window.Start, MaxElevation: prevEl}
	}

	for t := window.Start.Add(coarse); ; t = t.Add(coarse) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if t.After(window.End) {
			t = window.End
		}

		el, err := elevation(t)
		if err != nil {
			return nil, err
		}
		above, prevAbove := el > gs.Mask, prevEl > gs.Mask

		switch {
		case above && !prevAbove:
			rise, err := f.refine(prevT, t, fine, true, gs.Mask, elevation)
			if err != nil {
				return nil, err
			}
			cur = &model.Pass{StationID: gs.ID, SatelliteID: sat.ID, Rise: rise, MaxElevation: el}
		case !above && prevAbove && cur != nil:
			set, err := f.refine(prevT, t, fine, false, gs.Mask, elevation)
			if err != nil {
				return nil, err
			}
			cur.Set = set
			if cur.Set.After(cur.Rise) {
				passes = append(passes, *cur)
			}
			cur = nil
		case above && cur != nil && el > cur.MaxElevation:
			cur.MaxElevation = el
		}

		prevT, prevEl = t, el
		if !t.Before(window.End) {
			break
		}
	}

	if cur != nil {
		cur.Set = window.End
		if cur.Set.After(cur.Rise) {
			passes = append(passes, *cur)
		}
	}
	return passes, nil
}

// refine scans (from, to] at step and returns the first instant whose
// visibility equals wantAbove. to is returned when nothing earlier matches.
func (f *PassFinder) refine(from, to time.Time, step time.Duration, wantAbove bool, mask float64, elevation func(time.Time) (float64, error)) (time.Time, error) {
	for t := from.Add(step); t.Before(to); t = t.Add(step) {
		el, err := elevation(t)
		if err != nil {
			return time.Time{}, err
		}
		if (el > mask) == wantAbove {
			return t, nil
		}
	}
	return to, nil
}
