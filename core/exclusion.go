package core

import (
	"context"
	"time"

	"github.com/signalsfoundry/contact-scheduler/model"
)

// AngleSampleStep is the spacing of angular separation samples.
const AngleSampleStep = time.Minute

// AngleSample is the angular separation of two satellites as seen from one
// station at one instant.
type AngleSample struct {
	Time          time.Time
	SeparationDeg float64
}

// AngleDiff samples, on every whole minute in [start, end], the angle
// between the lines of sight from obs to a and to b. Minutes where either
// satellite is at or below the horizon are skipped.
func AngleDiff(ctx context.Context, start, end time.Time, a, b *Propagator, obs Observer) ([]AngleSample, error) {
	t := start.Truncate(AngleSampleStep)
	if t.Before(start) {
		t = t.Add(AngleSampleStep)
	}

	var samples []AngleSample
	for ; !t.After(end); t = t.Add(AngleSampleStep) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lookA, posA, err := a.LookFrom(obs, t)
		if err != nil {
			return nil, err
		}
		if lookA.ElevationDeg <= 0 {
			continue
		}
		lookB, posB, err := b.LookFrom(obs, t)
		if err != nil {
			return nil, err
		}
		if lookB.ElevationDeg <= 0 {
			continue
		}
		samples = append(samples, AngleSample{
			Time:          t,
			SeparationDeg: AngleBetweenDegrees(obs.LineOfSight(posA), obs.LineOfSight(posB)),
		})
	}
	return samples, nil
}

// ExclusionTimes coalesces runs of minute-adjacent samples whose separation
// is below limitDeg into closed intervals. A run of one sample yields an
// interval with Start == End.
func ExclusionTimes(samples []AngleSample, limitDeg float64) []model.Interval {
	var (
		out  []model.Interval
		open bool
		cur  model.Interval
	)
	for _, s := range samples {
		if s.SeparationDeg >= limitDeg {
			if open {
				out = append(out, cur)
				open = false
			}
			continue
		}
		if open && s.Time.Sub(cur.End) == AngleSampleStep {
			cur.End = s.Time
			continue
		}
		if open {
			out = append(out, cur)
		}
		cur = model.Interval{Start: s.Time, End: s.Time}
		open = true
	}
	if open {
		out = append(out, cur)
	}
	return out
}

// ExclusionCalculator computes exclusion windows for catalog entries.
type ExclusionCalculator struct{}

// Windows returns the times within window when interferer is closer than
// cone.AngleLimit to sat as seen from gs.
func (ExclusionCalculator) Windows(ctx context.Context, cone model.ExclusionCone, sat, interferer model.Satellite, gs model.GroundStation, window model.Interval) ([]model.Interval, error) {
	a, err := NewPropagator(sat)
	if err != nil {
		return nil, err
	}
	b, err := NewPropagator(interferer)
	if err != nil {
		return nil, err
	}
	samples, err := AngleDiff(ctx, window.Start, window.End, a, b, NewObserver(gs.Lat, gs.Lon, gs.Height))
	if err != nil {
		return nil, err
	}
	return ExclusionTimes(samples, cone.AngleLimit), nil
}
