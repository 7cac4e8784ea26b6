package model

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Duration returns End - Start.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Valid reports whether Start is strictly before End.
func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

// Overlaps reports whether the two half-open ranges share any instant.
// Touching ranges ([a,b) and [b,c)) do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Contains reports whether other lies entirely within i.
func (i Interval) Contains(other Interval) bool {
	return !other.Start.Before(i.Start) && !other.End.After(i.End)
}

// Equal reports whether both bounds denote the same instants.
func (i Interval) Equal(other Interval) bool {
	return i.Start.Equal(other.Start) && i.End.Equal(other.End)
}

// Intersect returns the overlap of i and other and whether it is
// non-empty.
func (i Interval) Intersect(other Interval) (Interval, bool) {
	out := Interval{Start: i.Start, End: i.End}
	if other.Start.After(out.Start) {
		out.Start = other.Start
	}
	if other.End.Before(out.End) {
		out.End = other.End
	}
	return out, out.Valid()
}
