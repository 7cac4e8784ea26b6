package timectrl

import (
	"testing"
	"time"
)

func TestManualSetTime(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewManual(start)

	newNow := start.Add(42 * time.Second)
	c.Set(newNow)

	if got := c.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestManualAfterFiresOnAdvance(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewManual(start)

	ch := c.After(10 * time.Minute)
	c.Advance(5 * time.Minute)
	select {
	case <-ch:
		t.Fatalf("timer fired early")
	default:
	}
	if c.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", c.Pending())
	}

	c.Advance(5 * time.Minute)
	select {
	case got := <-ch:
		if want := start.Add(10 * time.Minute); !got.Equal(want) {
			t.Fatalf("timer delivered %v, want %v", got, want)
		}
	default:
		t.Fatalf("timer did not fire at deadline")
	}
	if c.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", c.Pending())
	}
}

func TestManualAfterNonPositiveFiresImmediately(t *testing.T) {
	c := NewManual(time.Unix(0, 0))
	select {
	case <-c.After(0):
	default:
		t.Fatalf("After(0) did not fire immediately")
	}
}

func TestSystemNowIsUTC(t *testing.T) {
	if loc := (System{}).Now().Location(); loc != time.UTC {
		t.Fatalf("System.Now location = %v, want UTC", loc)
	}
}
