package analysis

import (
	"time"

	"github.com/ongoingai/llmcompare/internal/spans"
)

// ComparisonThreshold is the minimum bucket size treated as a side-by-side
// comparison.
const ComparisonThreshold = 2

// IndexedCall is a call plus its position in the filtered, sorted call list.
type IndexedCall struct {
	Index int
	Call  spans.CallDetail
}

// TimeGroup holds the calls whose start times floor to the same second.
type TimeGroup struct {
	Key   time.Time
	Calls []IndexedCall
}

func (g TimeGroup) IsComparison() bool {
	return len(g.Calls) >= ComparisonThreshold
}

// Grouping is the result of bucketing one run's calls.
type Grouping struct {
	Window  Window
	Buckets []TimeGroup
	Recent  []IndexedCall
}

// ComparisonGroups returns the buckets with at least two calls, in the order
// their keys were first seen.
func (g Grouping) ComparisonGroups() []TimeGroup {
	out := make([]TimeGroup, 0, len(g.Buckets))
	for _, bucket := range g.Buckets {
		if bucket.IsComparison() {
			out = append(out, bucket)
		}
	}
	return out
}

// GroupByStartTime buckets calls inside window by start time floored to the
// second. Calls without a usable start time are skipped. Recent keeps the
// input order; buckets keep first-seen order.
func GroupByStartTime(calls []spans.CallDetail, window Window) Grouping {
	grouping := Grouping{Window: window}
	positions := make(map[int64]int)

	for index, call := range calls {
		start, ok := call.StartTime.Get()
		if !ok || !window.Contains(start) {
			continue
		}
		entry := IndexedCall{Index: index, Call: call}
		grouping.Recent = append(grouping.Recent, entry)

		key := TruncateToSecond(bucketTime(start))
		slot, seen := positions[key.UnixNano()]
		if !seen {
			slot = len(grouping.Buckets)
			positions[key.UnixNano()] = slot
			grouping.Buckets = append(grouping.Buckets, TimeGroup{Key: key})
		}
		grouping.Buckets[slot].Calls = append(grouping.Buckets[slot].Calls, entry)
	}
	return grouping
}

// Zoned and naive starts with the same UTC wall clock share a bucket.
func bucketTime(ts spans.Timestamp) time.Time {
	return ts.Time.UTC()
}
