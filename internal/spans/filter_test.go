package spans

import "testing"

func TestIsLLM(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		kind     string
		spanName string
		want     bool
	}{
		{name: "llm kind", kind: "LLM", spanName: "ChatCompletion", want: true},
		{name: "openai name", kind: "CHAIN", spanName: "OpenAI.chat", want: true},
		{name: "lowercase openai name", kind: "", spanName: "call openai", want: true},
		{name: "chain", kind: "CHAIN", spanName: "RetrievalChain", want: false},
		{name: "kind is case sensitive", kind: "llm", spanName: "ChatCompletion", want: false},
		{name: "empty", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsLLM(tt.kind, tt.spanName); got != tt.want {
				t.Fatalf("IsLLM(%q, %q)=%v, want %v", tt.kind, tt.spanName, got, tt.want)
			}
		})
	}
}

func TestFilterLLMKeepsLLMCallsNewestFirst(t *testing.T) {
	t.Parallel()

	calls := NormalizeAll([]RawSpan{
		{KeySpanID: "llm-old", KeySpanKind: "LLM", KeyName: "ChatCompletion", KeyStartTime: "2025-08-06T18:00:00Z"},
		{KeySpanID: "chain", KeySpanKind: "CHAIN", KeyName: "Chain", KeyStartTime: "2025-08-06T18:05:00Z"},
		{KeySpanID: "openai", KeySpanKind: "UNKNOWN", KeyName: "openai.chat.completions", KeyStartTime: "2025-08-06T18:10:00Z"},
		{KeySpanID: "llm-new", KeySpanKind: "LLM", KeyName: "ChatCompletion", KeyStartTime: "2025-08-06T18:20:00Z"},
	})

	filtered := FilterLLM(calls)

	want := []string{"llm-new", "openai", "llm-old"}
	if len(filtered) != len(want) {
		t.Fatalf("len(filtered)=%d, want %d", len(filtered), len(want))
	}
	for i, id := range want {
		if got := filtered[i].SpanID.Or(""); got != id {
			t.Fatalf("filtered[%d]=%q, want %q", i, got, id)
		}
	}
}

func TestFilterLLMMissingStartTimesSortLast(t *testing.T) {
	t.Parallel()

	calls := NormalizeAll([]RawSpan{
		{KeySpanID: "no-start-1", KeySpanKind: "LLM"},
		{KeySpanID: "dated", KeySpanKind: "LLM", KeyStartTime: "2025-08-06T18:00:00Z"},
		{KeySpanID: "no-start-2", KeySpanKind: "LLM", KeyStartTime: "NaT"},
	})

	filtered := FilterLLM(calls)

	want := []string{"dated", "no-start-1", "no-start-2"}
	for i, id := range want {
		if got := filtered[i].SpanID.Or(""); got != id {
			t.Fatalf("filtered[%d]=%q, want %q", i, got, id)
		}
	}
}

func TestFilterLLMEmptyInput(t *testing.T) {
	t.Parallel()

	if got := FilterLLM(nil); len(got) != 0 {
		t.Fatalf("FilterLLM(nil) len=%d, want 0", len(got))
	}
}
