package allocator

import (
	"sort"

	"github.com/google/uuid"

	"github.com/signalsfoundry/contact-scheduler/model"
)

// claims tracks the intervals booked so far in one pass, per station. Each
// station's list is kept sorted and non-overlapping.
type claims struct {
	byStation map[uuid.UUID][]model.Interval
}

func newClaims() *claims {
	return &claims{byStation: make(map[uuid.UUID][]model.Interval)}
}

// overlaps reports whether iv intersects any claim at station.
func (c *claims) overlaps(station uuid.UUID, iv model.Interval) bool {
	list := c.byStation[station]
	// Ends are sorted because the list is sorted and disjoint.
	i := sort.Search(len(list), func(i int) bool { return list[i].End.After(iv.Start) })
	return i < len(list) && list[i].Start.Before(iv.End)
}

// add records iv at station. The caller has checked overlaps.
func (c *claims) add(station uuid.UUID, iv model.Interval) {
	list := c.byStation[station]
	i := sort.Search(len(list), func(i int) bool { return !list[i].Start.Before(iv.Start) })
	list = append(list, model.Interval{})
	copy(list[i+1:], list[i:])
	list[i] = iv
	c.byStation[station] = list
}
