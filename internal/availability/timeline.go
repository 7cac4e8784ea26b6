package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/signalsfoundry/contact-scheduler/model"
)

// Timeline is one station's ordered, non-overlapping busy windows. It is
// not safe for concurrent use.
type Timeline struct {
	windows []BusyWindow
}

// Set applies state over iv. A busy state fails with ErrConflict when iv
// overlaps an existing window, unless it repeats that window exactly.
// StateFree trims every overlapping window.
func (t *Timeline) Set(iv model.Interval, state State, mission string) error {
	if !iv.Valid() {
		return fmt.Errorf("interval %s..%s is empty or reversed", iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
	}
	if state == StateFree {
		t.release(iv)
		return nil
	}
	for _, w := range t.windows {
		if w.Interval().Equal(iv) && w.State == state && w.Mission == mission {
			return nil
		}
		if w.Interval().Overlaps(iv) {
			return fmt.Errorf("%w: %s..%s is %s for %q", ErrConflict,
				w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339), w.State, w.Mission)
		}
	}
	t.windows = append(t.windows, BusyWindow{Start: iv.Start, End: iv.End, State: state, Mission: mission})
	sort.Slice(t.windows, func(i, j int) bool { return t.windows[i].Start.Before(t.windows[j].Start) })
	return nil
}

func (t *Timeline) release(iv model.Interval) {
	out := t.windows[:0:0]
	for _, w := range t.windows {
		if !w.Interval().Overlaps(iv) {
			out = append(out, w)
			continue
		}
		if w.Start.Before(iv.Start) {
			head := w
			head.End = iv.Start
			out = append(out, head)
		}
		if w.End.After(iv.End) {
			tail := w
			tail.Start = iv.End
			out = append(out, tail)
		}
	}
	t.windows = out
}

// Busy returns windows intersecting [start, end).
func (t *Timeline) Busy(start, end time.Time) []BusyWindow {
	q := model.Interval{Start: start, End: end}
	var out []BusyWindow
	for _, w := range t.windows {
		if w.Interval().Overlaps(q) {
			out = append(out, w)
		}
	}
	return out
}

// At returns the window covering instant at, or a free window.
func (t *Timeline) At(at time.Time) BusyWindow {
	for _, w := range t.windows {
		if !at.Before(w.Start) && at.Before(w.End) {
			return w
		}
	}
	return BusyWindow{Start: at, End: at, State: StateFree}
}

// Len reports the number of busy windows.
func (t *Timeline) Len() int { return len(t.windows) }
