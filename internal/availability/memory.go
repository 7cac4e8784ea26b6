package availability

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/contact-scheduler/model"
)

// Memory is an in-process Oracle keeping one Timeline per station. It is
// used when no simulator is configured and in tests.
type Memory struct {
	mu        sync.Mutex
	timelines map[string]*Timeline
}

// NewMemory constructs an empty Memory oracle; every station starts free.
func NewMemory() *Memory {
	return &Memory{timelines: make(map[string]*Timeline)}
}

func (m *Memory) timeline(station string) *Timeline {
	t, ok := m.timelines[station]
	if !ok {
		t = &Timeline{}
		m.timelines[station] = t
	}
	return t
}

// QueryBusy implements Oracle.
func (m *Memory) QueryBusy(ctx context.Context, station string, start, end time.Time) ([]model.Interval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	windows := m.timeline(station).Busy(start, end)
	out := make([]model.Interval, 0, len(windows))
	for _, w := range windows {
		out = append(out, w.Interval())
	}
	return out, nil
}

// Reserve implements Oracle.
func (m *Memory) Reserve(ctx context.Context, station string, iv model.Interval, state State, mission string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeline(station).Set(iv, state, mission)
}

// Windows returns a copy of the busy windows at station.
func (m *Memory) Windows(station string) []BusyWindow {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timelines[station]
	if !ok {
		return nil
	}
	return append([]BusyWindow(nil), t.windows...)
}
