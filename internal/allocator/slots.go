package allocator

import (
	"time"

	"github.com/signalsfoundry/contact-scheduler/model"
)

// DefaultSlotDuration is the length of a scheduling slot.
const DefaultSlotDuration = 900 * time.Second

// Slot is one candidate booking range produced by Divide.
type Slot = model.Interval

// Divide partitions [start, end) into consecutive slots of length d. The
// final slot is clipped to end, so every slot lies inside the window and
// len(result) == ceil((end-start)/d). A non-positive d uses
// DefaultSlotDuration; an empty or reversed window yields no slots.
func Divide(start, end time.Time, d time.Duration) []Slot {
	if d <= 0 {
		d = DefaultSlotDuration
	}
	if !start.Before(end) {
		return nil
	}

	n := int((end.Sub(start) + d - 1) / d)
	slots := make([]Slot, 0, n)
	for cur := start; cur.Before(end); cur = cur.Add(d) {
		next := cur.Add(d)
		if next.After(end) {
			next = end
		}
		slots = append(slots, Slot{Start: cur, End: next})
	}
	return slots
}
