package allocator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/contact-scheduler/core"
	"github.com/signalsfoundry/contact-scheduler/internal/logging"
	"github.com/signalsfoundry/contact-scheduler/model"
)

// Candidate is a proposed booking presented to rules.
type Candidate struct {
	Request  model.Request
	Station  model.GroundStation
	Interval model.Interval
}

// Rule is a pluggable filter over candidate bookings. A rule error aborts
// the pass.
type Rule interface {
	Name() string
	Allow(ctx context.Context, c Candidate) (bool, error)
}

// Preparer is implemented by rules that want to precompute state before a
// pass. Prepare is called once per ScheduleAll with the sorted backlog.
type Preparer interface {
	Prepare(ctx context.Context, requests []model.Request, stations []model.GroundStation) error
}

// Clipper is implemented by rules that accept only part of a slot. Clip
// narrows c.Interval to the part the rule accepts and reports false when
// nothing remains. Clippers run before any Allow call.
type Clipper interface {
	Clip(ctx context.Context, c Candidate) (model.Interval, bool, error)
}

// SatelliteCatalog resolves satellites referenced by requests and cones.
type SatelliteCatalog interface {
	GetSatellite(ctx context.Context, id uuid.UUID) (model.Satellite, error)
}

// ExclusionCatalog lists the cones configured at a station.
type ExclusionCatalog interface {
	ListExclusionCones(ctx context.Context, stationID uuid.UUID) ([]model.ExclusionCone, error)
}

// ExclusionCalculator computes exclusion windows for one cone.
type ExclusionCalculator interface {
	Windows(ctx context.Context, cone model.ExclusionCone, sat, interferer model.Satellite, gs model.GroundStation, window model.Interval) ([]model.Interval, error)
}

// DefaultRuleParallelism bounds concurrent pass computations in Prepare.
const DefaultRuleParallelism = 4

type windowKey struct {
	a, b       uuid.UUID
	start, end int64
}

func keyFor(a, b uuid.UUID, w model.Interval) windowKey {
	return windowKey{a: a, b: b, start: w.Start.UnixNano(), end: w.End.UnixNano()}
}

// VisibilityRule accepts an RF candidate only when it lies inside a pass
// of the requesting satellite over the candidate station. As a Clipper it
// narrows a slot to the whole seconds of the earliest pass overlapping it.
// Contact requests carry their own acquisition timeline and are not
// checked.
type VisibilityRule struct {
	oracle      core.VisibilityOracle
	satellites  SatelliteCatalog
	parallelism int
	log         logging.Logger

	mu     sync.Mutex
	passes map[windowKey][]model.Pass
}

// NewVisibilityRule builds a rule over oracle. parallelism <= 0 uses
// DefaultRuleParallelism.
func NewVisibilityRule(oracle core.VisibilityOracle, satellites SatelliteCatalog, parallelism int, log logging.Logger) *VisibilityRule {
	if parallelism <= 0 {
		parallelism = DefaultRuleParallelism
	}
	if log == nil {
		log = logging.Noop()
	}
	return &VisibilityRule{
		oracle:      oracle,
		satellites:  satellites,
		parallelism: parallelism,
		log:         log,
		passes:      make(map[windowKey][]model.Pass),
	}
}

func (r *VisibilityRule) Name() string { return "visibility" }

// Prepare drops passes from earlier runs and computes the passes for every
// RF request and station concurrently.
func (r *VisibilityRule) Prepare(ctx context.Context, requests []model.Request, stations []model.GroundStation) error {
	r.mu.Lock()
	r.passes = make(map[windowKey][]model.Pass)
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	seen := make(map[windowKey]bool)
	for _, req := range requests {
		if req.Kind() != model.KindRF {
			continue
		}
		h := req.Header()
		sat, ok, err := r.satellite(ctx, h.SatelliteID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		for _, gs := range stations {
			k := keyFor(sat.ID, gs.ID, h.Window())
			if seen[k] {
				continue
			}
			seen[k] = true
			gs, window := gs, h.Window()
			g.Go(func() error {
				_, err := r.passesFor(ctx, sat, gs, window)
				return err
			})
		}
	}
	return g.Wait()
}

func (r *VisibilityRule) Allow(ctx context.Context, c Candidate) (bool, error) {
	if c.Request.Kind() != model.KindRF {
		return true, nil
	}
	passes, ok, err := r.candidatePasses(ctx, c)
	if err != nil || !ok {
		return false, err
	}
	for _, p := range passes {
		if p.Interval().Contains(c.Interval) {
			return true, nil
		}
	}
	return false, nil
}

func (r *VisibilityRule) Clip(ctx context.Context, c Candidate) (model.Interval, bool, error) {
	if c.Request.Kind() != model.KindRF {
		return c.Interval, true, nil
	}
	passes, ok, err := r.candidatePasses(ctx, c)
	if err != nil || !ok {
		return model.Interval{}, false, err
	}
	for _, p := range passes {
		pi := p.Interval()
		visible := model.Interval{Start: ceilSecond(pi.Start), End: pi.End.Truncate(time.Second)}
		if iv, ok := c.Interval.Intersect(visible); ok {
			return iv, true, nil
		}
	}
	return model.Interval{}, false, nil
}

func (r *VisibilityRule) candidatePasses(ctx context.Context, c Candidate) ([]model.Pass, bool, error) {
	h := c.Request.Header()
	sat, ok, err := r.satellite(ctx, h.SatelliteID)
	if err != nil || !ok {
		return nil, false, err
	}
	passes, err := r.passesFor(ctx, sat, c.Station, h.Window())
	if err != nil {
		return nil, false, err
	}
	return passes, true, nil
}

func ceilSecond(t time.Time) time.Time {
	if tt := t.Truncate(time.Second); tt.Before(t) {
		return tt.Add(time.Second)
	}
	return t
}

// satellite resolves id. A satellite missing from the catalog or whose TLE
// cannot be parsed is reported as not usable rather than failing the pass.
func (r *VisibilityRule) satellite(ctx context.Context, id uuid.UUID) (model.Satellite, bool, error) {
	sat, err := r.satellites.GetSatellite(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		r.log.Warn(ctx, "satellite not in catalog; rejecting candidates",
			logging.String("satellite_id", id.String()))
		return model.Satellite{}, false, nil
	}
	if err != nil {
		return model.Satellite{}, false, fmt.Errorf("visibility rule: satellite %s: %w", id, err)
	}
	if _, _, err := sat.ElementLines(); err != nil {
		r.log.Warn(ctx, "satellite has no usable TLE; rejecting candidates",
			logging.String("satellite_id", id.String()), logging.Err(err))
		return sat, false, nil
	}
	return sat, true, nil
}

func (r *VisibilityRule) passesFor(ctx context.Context, sat model.Satellite, gs model.GroundStation, window model.Interval) ([]model.Pass, error) {
	k := keyFor(sat.ID, gs.ID, window)
	r.mu.Lock()
	passes, ok := r.passes[k]
	r.mu.Unlock()
	if ok {
		return passes, nil
	}

	passes, err := r.oracle.FindPasses(ctx, sat, gs, window)
	if err != nil {
		if errors.Is(err, model.ErrInvalidTLE) {
			r.log.Warn(ctx, "satellite TLE rejected by propagator",
				logging.String("satellite_id", sat.ID.String()), logging.Err(err))
			passes = nil
		} else {
			return nil, fmt.Errorf("find passes for %q over %q: %w", sat.Name, gs.Name, err)
		}
	}

	r.mu.Lock()
	r.passes[k] = passes
	r.mu.Unlock()
	return passes, nil
}

// ExclusionRule rejects a candidate that intersects an exclusion window of
// any cone configured for the requesting satellite at the candidate
// station. Exclusion windows are closed intervals and may be a single
// instant.
type ExclusionRule struct {
	cones      ExclusionCatalog
	satellites SatelliteCatalog
	calc       ExclusionCalculator

	mu      sync.Mutex
	windows map[windowKey][]model.Interval
}

// NewExclusionRule builds an exclusion rule. A nil calc uses
// core.ExclusionCalculator.
func NewExclusionRule(cones ExclusionCatalog, satellites SatelliteCatalog, calc ExclusionCalculator) *ExclusionRule {
	if calc == nil {
		calc = core.ExclusionCalculator{}
	}
	return &ExclusionRule{
		cones:      cones,
		satellites: satellites,
		calc:       calc,
		windows:    make(map[windowKey][]model.Interval),
	}
}

func (r *ExclusionRule) Name() string { return "exclusion" }

// Prepare drops windows cached by earlier runs.
func (r *ExclusionRule) Prepare(context.Context, []model.Request, []model.GroundStation) error {
	r.mu.Lock()
	r.windows = make(map[windowKey][]model.Interval)
	r.mu.Unlock()
	return nil
}

func (r *ExclusionRule) Allow(ctx context.Context, c Candidate) (bool, error) {
	h := c.Request.Header()
	cones, err := r.cones.ListExclusionCones(ctx, c.Station.ID)
	if err != nil {
		return false, fmt.Errorf("exclusion rule: list cones at %q: %w", c.Station.Name, err)
	}
	for _, cone := range cones {
		if cone.SatelliteID != h.SatelliteID {
			continue
		}
		windows, err := r.windowsFor(ctx, cone, c.Station, h.Window())
		if err != nil {
			return false, err
		}
		for _, w := range windows {
			if w.Start.Before(c.Interval.End) && !w.End.Before(c.Interval.Start) {
				return false, nil
			}
		}
	}
	return true, nil
}

func (r *ExclusionRule) windowsFor(ctx context.Context, cone model.ExclusionCone, gs model.GroundStation, window model.Interval) ([]model.Interval, error) {
	k := keyFor(cone.ID, gs.ID, window)
	r.mu.Lock()
	windows, ok := r.windows[k]
	r.mu.Unlock()
	if ok {
		return windows, nil
	}

	sat, err := r.satellites.GetSatellite(ctx, cone.SatelliteID)
	if err != nil {
		return nil, fmt.Errorf("exclusion rule: satellite %s: %w", cone.SatelliteID, err)
	}
	interferer, err := r.satellites.GetSatellite(ctx, cone.InterferingSatellite)
	if err != nil {
		return nil, fmt.Errorf("exclusion rule: interfering satellite %s: %w", cone.InterferingSatellite, err)
	}
	windows, err = r.calc.Windows(ctx, cone, sat, interferer, gs, window)
	if err != nil {
		return nil, fmt.Errorf("exclusion windows for cone %s: %w", cone.ID, err)
	}

	r.mu.Lock()
	r.windows[k] = windows
	r.mu.Unlock()
	return windows, nil
}
