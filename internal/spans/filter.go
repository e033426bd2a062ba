package spans

import (
	"sort"
	"strings"
)

// LLMKind is the span_kind value recorded for language-model invocations.
const LLMKind = "LLM"

// IsLLM reports whether a span looks like a language-model call: its kind is
// LLM, or its name mentions openai in any case.
func IsLLM(kind, name string) bool {
	if strings.TrimSpace(kind) == LLMKind {
		return true
	}
	return strings.Contains(strings.ToLower(name), "openai")
}

func (c CallDetail) IsLLM() bool {
	return IsLLM(c.Kind.Or(""), c.Name.Or(""))
}

// FilterLLM keeps LLM calls ordered by start time, most recent first. Calls
// without a start time sort last and keep their relative order.
func FilterLLM(calls []CallDetail) []CallDetail {
	out := make([]CallDetail, 0, len(calls))
	for _, call := range calls {
		if call.IsLLM() {
			out = append(out, call)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		left, leftOK := out[i].StartTime.Get()
		right, rightOK := out[j].StartTime.Get()
		if leftOK != rightOK {
			return leftOK
		}
		if !leftOK {
			return false
		}
		return left.Time.After(right.Time)
	})
	return out
}
