package spans

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2025, 8, 6, 18, 41, 59, 829542000, time.UTC)

	tests := []struct {
		name  string
		value any
		want  time.Time
		zoned bool
		ok    bool
	}{
		{name: "rfc3339 offset", value: "2025-08-06T18:41:59.829542+00:00", want: want, zoned: true, ok: true},
		{name: "rfc3339 zulu", value: "2025-08-06T18:41:59.829542Z", want: want, zoned: true, ok: true},
		{name: "space separated with offset", value: "2025-08-06 18:41:59.829542+00:00", want: want, zoned: true, ok: true},
		{name: "naive iso", value: "2025-08-06T18:41:59.829542", want: want, ok: true},
		{name: "naive space separated", value: "2025-08-06 18:41:59.829542", want: want, ok: true},
		{name: "time value", value: want, want: want, zoned: true, ok: true},
		{name: "epoch seconds", value: float64(1754505719), want: time.Unix(1754505719, 0).UTC(), zoned: true, ok: true},
		{name: "epoch millis", value: int64(1754505719829), want: time.UnixMilli(1754505719829).UTC(), zoned: true, ok: true},
		{name: "epoch nanos", value: int64(1754505719829542000), want: want, zoned: true, ok: true},
		{name: "int seconds past nanosecond range", value: int64(1e10)},
		{name: "float seconds past nanosecond range", value: float64(1e10)},
		{name: "sentinel", value: Missing},
		{name: "not a time", value: "NaT"},
		{name: "garbage", value: "yesterday"},
		{name: "nil", value: nil},
		{name: "zero time", value: time.Time{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := ParseTimestamp(tt.value)
			if ok != tt.ok {
				t.Fatalf("ParseTimestamp(%v) ok=%v, want %v", tt.value, ok, tt.ok)
			}
			if !ok {
				return
			}
			if !got.Time.Equal(tt.want) {
				t.Fatalf("ParseTimestamp(%v)=%v, want %v", tt.value, got.Time, tt.want)
			}
			if got.Zoned != tt.zoned {
				t.Fatalf("ParseTimestamp(%v) zoned=%v, want %v", tt.value, got.Zoned, tt.zoned)
			}
		})
	}
}

func TestTimestampString(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 8, 6, 18, 41, 59, 500000000, time.UTC)
	if got := (Timestamp{Time: base}).String(); got != "2025-08-06 18:41:59.5" {
		t.Fatalf("naive String()=%q", got)
	}
	if got := (Timestamp{Time: base, Zoned: true}).String(); got != "2025-08-06T18:41:59.5Z" {
		t.Fatalf("zoned String()=%q", got)
	}
}

func TestOptionalRendering(t *testing.T) {
	t.Parallel()

	if got := None[int64]().String(); got != Missing {
		t.Fatalf("None String()=%q, want %q", got, Missing)
	}
	if got := Some(int64(450)).String(); got != "450" {
		t.Fatalf("Some(450) String()=%q", got)
	}
	if got := Some(750.0).String(); got != "750" {
		t.Fatalf("Some(750.0) String()=%q", got)
	}
	if got := None[float64]().Value(); got != Missing {
		t.Fatalf("None Value()=%v, want %q", got, Missing)
	}
	if got := None[int64]().Or(0); got != 0 {
		t.Fatalf("None Or(0)=%d", got)
	}
}
