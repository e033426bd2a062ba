package spans

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Timestamp is a parsed span time. Naive timestamps (no zone offset in the
// source) are stored in UTC with Zoned=false.
type Timestamp struct {
	Time  time.Time
	Zoned bool
}

const naiveLayout = "2006-01-02 15:04:05.999999999"

func (t Timestamp) String() string {
	if t.Zoned {
		return t.Time.Format(time.RFC3339Nano)
	}
	return t.Time.Format(naiveLayout)
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999 -0700 MST",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	naiveLayout,
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp accepts time.Time values, RFC3339-style strings with or
// without zone offset, and epoch numbers in seconds, milliseconds,
// microseconds, or nanoseconds.
func ParseTimestamp(value any) (Timestamp, bool) {
	switch typed := value.(type) {
	case nil:
		return Timestamp{}, false
	case Timestamp:
		return typed, !typed.Time.IsZero()
	case time.Time:
		if typed.IsZero() {
			return Timestamp{}, false
		}
		return Timestamp{Time: typed, Zoned: true}, true
	case *time.Time:
		if typed == nil {
			return Timestamp{}, false
		}
		return ParseTimestamp(*typed)
	case string:
		return parseTimestampString(typed)
	case []byte:
		return parseTimestampString(string(typed))
	case json.Number:
		if parsed, err := typed.Int64(); err == nil {
			return epochIntTimestamp(parsed)
		}
		if parsed, err := typed.Float64(); err == nil {
			return epochTimestamp(parsed)
		}
		return parseTimestampString(typed.String())
	case float64:
		return epochTimestamp(typed)
	case int64:
		return epochIntTimestamp(typed)
	case int:
		return epochIntTimestamp(int64(typed))
	default:
		return Timestamp{}, false
	}
}

func parseTimestampString(raw string) (Timestamp, bool) {
	value := strings.TrimSpace(raw)
	if value == "" || strings.EqualFold(value, Missing) || strings.EqualFold(value, "nat") {
		return Timestamp{}, false
	}
	for _, layout := range zonedLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return Timestamp{Time: parsed, Zoned: true}, true
		}
	}
	for _, layout := range naiveLayouts {
		if parsed, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return Timestamp{Time: parsed, Zoned: false}, true
		}
	}
	return Timestamp{}, false
}

func epochTimestamp(value float64) (Timestamp, bool) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return Timestamp{}, false
	}
	nanos := value * float64(epochMultiplier(value))
	// Values that land past the int64 nanosecond range are rejected.
	if nanos >= math.MaxInt64 {
		return Timestamp{}, false
	}
	return Timestamp{Time: time.Unix(0, int64(nanos)).UTC(), Zoned: true}, true
}

func epochIntTimestamp(value int64) (Timestamp, bool) {
	if value <= 0 {
		return Timestamp{}, false
	}
	multiplier := epochMultiplier(float64(value))
	if value > math.MaxInt64/multiplier {
		return Timestamp{}, false
	}
	return Timestamp{Time: time.Unix(0, value*multiplier).UTC(), Zoned: true}, true
}

// epochMultiplier guesses the unit of an epoch number from its magnitude and
// returns the factor to nanoseconds.
func epochMultiplier(value float64) int64 {
	switch abs := math.Abs(value); {
	case abs >= 1e17:
		return 1
	case abs >= 1e14:
		return 1e3
	case abs >= 1e11:
		return 1e6
	default:
		return 1e9
	}
}
