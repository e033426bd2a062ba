package analysis

import (
	"time"

	"github.com/ongoingai/llmcompare/internal/spans"
)

// Window is the trailing lookback period within which calls count as recent.
type Window struct {
	Cutoff   time.Time
	Lookback time.Duration
}

// NewWindow returns the window ending at now and reaching lookback into the
// past. The cutoff is kept in UTC.
func NewWindow(now time.Time, lookback time.Duration) Window {
	if lookback < 0 {
		lookback = 0
	}
	return Window{Cutoff: now.UTC().Add(-lookback), Lookback: lookback}
}

// Contains reports whether ts is at or after the cutoff. Naive timestamps
// carry their wall clock in UTC, so they are compared against the cutoff's
// UTC wall clock with the zone dropped.
func (w Window) Contains(ts spans.Timestamp) bool {
	if ts.Zoned {
		return !ts.Time.Before(w.Cutoff)
	}
	return !stripZone(ts.Time).Before(stripZone(w.Cutoff.UTC()))
}

func stripZone(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// TruncateToSecond floors t to whole seconds. Applying it twice is the same
// as applying it once.
func TruncateToSecond(t time.Time) time.Time {
	return t.Truncate(time.Second)
}
