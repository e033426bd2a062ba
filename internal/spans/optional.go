package spans

import "fmt"

// Missing is the display text for absent values.
const Missing = "N/A"

// Optional holds a value that a span record may or may not have carried.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some wraps a present value.
func Some[T any](value T) Optional[T] {
	return Optional[T]{value: value, ok: true}
}

// None returns the missing variant.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

func (o Optional[T]) Present() bool {
	return o.ok
}

// Or returns the value, or fallback when missing.
func (o Optional[T]) Or(fallback T) T {
	if !o.ok {
		return fallback
	}
	return o.value
}

// String renders the value for display, using Missing for absent values.
func (o Optional[T]) String() string {
	if !o.ok {
		return Missing
	}
	switch v := any(o.value).(type) {
	case string:
		return v
	case float64:
		return formatFloat(v)
	case Timestamp:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Value returns the raw value or Missing, for encoders that emit loosely
// typed documents.
func (o Optional[T]) Value() any {
	if !o.ok {
		return Missing
	}
	if ts, isTimestamp := any(o.value).(Timestamp); isTimestamp {
		return ts.String()
	}
	return o.value
}
