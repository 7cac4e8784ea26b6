package availability

import (
	"fmt"
	"strings"
	"time"
)

// WireTimeLayout is the naive UTC timestamp layout the simulator accepts in
// query strings.
const WireTimeLayout = "2006-01-02T15:04:05"

// FormatTime renders t for the simulator wire format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(WireTimeLayout)
}

// ParseTime accepts RFC 3339 (with or without fractional seconds) or the
// naive layout, with a 'T' or a space separator, which is read as UTC.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(WireTimeLayout, raw, time.UTC); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05", "2006-01-02 15:04:05.999999999"} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q: unsupported layout", raw)
}

// SchedulePassRequest is the body of POST /{station}/schedule_pass/.
type SchedulePassRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	State     string `json:"state"`
	Mission   string `json:"mission"`
}

// BusyTimeJSON is one element of a busy_times response.
type BusyTimeJSON struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	State     string `json:"state"`
	Mission   string `json:"mission,omitempty"`
}

// BusyTimesResponse is the body of GET /{station}/query_busy_times/.
type BusyTimesResponse struct {
	BusyTimes []BusyTimeJSON `json:"busy_times"`
}

// StateResponse is the body of GET /{station}/query_state_at/{time}.
type StateResponse struct {
	State   string `json:"state"`
	Mission string `json:"mission,omitempty"`
}

// SchedulePassResponse acknowledges a reservation.
type SchedulePassResponse struct {
	Station   string `json:"station"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	State     string `json:"state"`
	Mission   string `json:"mission,omitempty"`
}

// ToJSON converts a window to its wire form.
func (w BusyWindow) ToJSON() BusyTimeJSON {
	return BusyTimeJSON{
		StartTime: w.Start.UTC().Format(time.RFC3339),
		EndTime:   w.End.UTC().Format(time.RFC3339),
		State:     string(w.State),
		Mission:   w.Mission,
	}
}

// FromJSON parses a wire busy window.
func FromJSON(j BusyTimeJSON) (BusyWindow, error) {
	start, err := ParseTime(j.StartTime)
	if err != nil {
		return BusyWindow{}, err
	}
	end, err := ParseTime(j.EndTime)
	if err != nil {
		return BusyWindow{}, err
	}
	state, err := ParseState(j.State)
	if err != nil {
		return BusyWindow{}, err
	}
	return BusyWindow{Start: start, End: end, State: state, Mission: j.Mission}, nil
}
