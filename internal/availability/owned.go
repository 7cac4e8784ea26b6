package availability

import (
	"context"
	"time"

	"github.com/signalsfoundry/contact-scheduler/model"
)

// OwnedFilter hides busy intervals that exactly match bookings this
// scheduler committed earlier, so a full reschedule can place them again.
type OwnedFilter struct {
	next  Oracle
	owned map[string][]model.Interval
}

// ExcludeOwned wraps next. owned maps station name to our committed
// booking intervals.
func ExcludeOwned(next Oracle, owned map[string][]model.Interval) *OwnedFilter {
	return &OwnedFilter{next: next, owned: owned}
}

// QueryBusy implements Oracle.
func (f *OwnedFilter) QueryBusy(ctx context.Context, station string, start, end time.Time) ([]model.Interval, error) {
	busy, err := f.next.QueryBusy(ctx, station, start, end)
	if err != nil {
		return nil, err
	}
	mine := f.owned[station]
	if len(mine) == 0 {
		return busy, nil
	}
	out := busy[:0:0]
	for _, b := range busy {
		if !containsEqual(mine, b) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Reserve implements Oracle.
func (f *OwnedFilter) Reserve(ctx context.Context, station string, iv model.Interval, state State, mission string) error {
	return f.next.Reserve(ctx, station, iv, state, mission)
}

func containsEqual(list []model.Interval, iv model.Interval) bool {
	for _, o := range list {
		if o.Equal(iv) {
			return true
		}
	}
	return false
}
