package spans

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// RawSpan is one span record as exported by the trace source. Keys are dotted
// attribute paths such as "attributes.llm.model_name"; any key may be absent.
type RawSpan map[string]any

// Lookup returns the value stored under key when it is present and non-null.
func (r RawSpan) Lookup(key string) (any, bool) {
	if len(r) == 0 {
		return nil, false
	}
	value, ok := r[key]
	if !ok || isNull(value) {
		return nil, false
	}
	return value, true
}

// First returns the first present, non-null value among keys.
func (r RawSpan) First(keys ...string) (any, bool) {
	for _, key := range keys {
		if value, ok := r.Lookup(key); ok {
			return value, true
		}
	}
	return nil, false
}

func (r RawSpan) String(key string) Optional[string] {
	value, ok := r.Lookup(key)
	if !ok {
		return None[string]()
	}
	text, ok := CoerceString(value)
	if !ok {
		return None[string]()
	}
	return Some(text)
}

func (r RawSpan) Int64(key string) Optional[int64] {
	value, ok := r.Lookup(key)
	if !ok {
		return None[int64]()
	}
	parsed, ok := CoerceInt64(value)
	if !ok {
		return None[int64]()
	}
	return Some(parsed)
}

func (r RawSpan) Float64(key string) Optional[float64] {
	value, ok := r.Lookup(key)
	if !ok {
		return None[float64]()
	}
	parsed, ok := CoerceFloat64(value)
	if !ok {
		return None[float64]()
	}
	return Some(parsed)
}

// Flatten converts nested attribute maps into dotted keys under prefix.
// Lists are kept as values so structured message payloads survive intact.
func Flatten(prefix string, values map[string]any, into RawSpan) RawSpan {
	if into == nil {
		into = make(RawSpan, len(values))
	}
	for key, value := range values {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok && len(nested) > 0 {
			Flatten(fullKey, nested, into)
			continue
		}
		into[fullKey] = value
	}
	return into
}

func isNull(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(typed)
	case float32:
		return math.IsNaN(float64(typed))
	case json.RawMessage:
		return len(typed) == 0 || string(typed) == "null"
	}
	return false
}

// CoerceString renders scalar values as text. Empty strings count as absent.
func CoerceString(value any) (string, bool) {
	switch typed := value.(type) {
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return "", false
		}
		return trimmed, true
	case []byte:
		return CoerceString(string(typed))
	case json.Number:
		return typed.String(), true
	case float64:
		return formatFloat(typed), true
	case int:
		return strconv.Itoa(typed), true
	case int64:
		return strconv.FormatInt(typed, 10), true
	case bool:
		return strconv.FormatBool(typed), true
	default:
		return "", false
	}
}

// CoerceInt64 converts a loosely-typed value to int64, handling float64,
// float32, int, int64, int32, json.Number, and string representations.
// Fractional floats are rejected rather than truncated.
func CoerceInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) || typed != math.Trunc(typed) {
			return 0, false
		}
		return int64(typed), true
	case float32:
		return CoerceInt64(float64(typed))
	case int:
		return int64(typed), true
	case int64:
		return typed, true
	case int32:
		return int64(typed), true
	case json.Number:
		if parsed, err := typed.Int64(); err == nil {
			return parsed, true
		}
		parsed, err := typed.Float64()
		if err != nil {
			return 0, false
		}
		return CoerceInt64(parsed)
	case string:
		trimmed := strings.TrimSpace(typed)
		if parsed, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return parsed, true
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return CoerceInt64(parsed)
	default:
		return 0, false
	}
}

// CoerceFloat64 converts a loosely-typed numeric value to float64.
func CoerceFloat64(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return 0, false
		}
		return typed, true
	case float32:
		return CoerceFloat64(float64(typed))
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return 0, false
		}
		return CoerceFloat64(parsed)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, false
		}
		return CoerceFloat64(parsed)
	default:
		return 0, false
	}
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
