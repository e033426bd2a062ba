package spans

import (
	"encoding/json"
	"math"
)

// Dotted keys recognized in a RawSpan.
const (
	KeySpanID           = "context.span_id"
	KeyTraceID          = "context.trace_id"
	KeyName             = "name"
	KeySpanKind         = "span_kind"
	KeyStartTime        = "start_time"
	KeyEndTime          = "end_time"
	KeyStatusCode       = "status_code"
	KeyModelName        = "attributes.llm.model_name"
	KeyProvider         = "attributes.llm.provider"
	KeySystem           = "attributes.llm.system"
	KeyPromptTokens     = "attributes.llm.token_count.prompt"
	KeyCompletionTokens = "attributes.llm.token_count.completion"
	KeyTotalTokens      = "attributes.llm.token_count.total"
	KeyTemperature      = "attributes.llm.temperature"
	KeyMaxTokens        = "attributes.llm.max_tokens"
	KeyTopP             = "attributes.llm.top_p"
	KeyCost             = "attributes.llm.cost"
	KeyFinishReason     = "attributes.llm.response.finish_reason"
)

// Payload candidates, tried in order: the short field, the qualified value
// field, then the structured messages list.
var (
	InputKeys  = []string{"input", "input.value", "attributes.input.value", "attributes.llm.input_messages"}
	OutputKeys = []string{"output", "output.value", "attributes.output.value", "attributes.llm.output_messages"}
)

// CallDetail is the fixed-shape projection of one span. Every field is set,
// either to a value or to the missing variant.
type CallDetail struct {
	SpanID           Optional[string]
	TraceID          Optional[string]
	Name             Optional[string]
	Kind             Optional[string]
	Status           Optional[string]
	StartTime        Optional[Timestamp]
	EndTime          Optional[Timestamp]
	DurationMS       Optional[float64]
	Model            Optional[string]
	Provider         Optional[string]
	Temperature      Optional[float64]
	MaxTokens        Optional[int64]
	TopP             Optional[float64]
	FinishReason     Optional[string]
	PromptTokens     Optional[int64]
	CompletionTokens Optional[int64]
	TotalTokens      Optional[int64]
	Cost             Optional[float64]
	InputData        Optional[string]
	OutputData       Optional[string]
}

// Normalize projects a raw span onto CallDetail. Malformed or absent fields
// become missing values; it never fails.
func Normalize(raw RawSpan) CallDetail {
	start := raw.timestamp(KeyStartTime)
	end := raw.timestamp(KeyEndTime)

	provider := raw.String(KeyProvider)
	if !provider.Present() {
		provider = raw.String(KeySystem)
	}

	return CallDetail{
		SpanID:           raw.String(KeySpanID),
		TraceID:          raw.String(KeyTraceID),
		Name:             raw.String(KeyName),
		Kind:             raw.String(KeySpanKind),
		Status:           raw.String(KeyStatusCode),
		StartTime:        start,
		EndTime:          end,
		DurationMS:       durationMS(start, end),
		Model:            raw.String(KeyModelName),
		Provider:         provider,
		Temperature:      raw.Float64(KeyTemperature),
		MaxTokens:        raw.Int64(KeyMaxTokens),
		TopP:             raw.Float64(KeyTopP),
		FinishReason:     raw.String(KeyFinishReason),
		PromptTokens:     raw.Int64(KeyPromptTokens),
		CompletionTokens: raw.Int64(KeyCompletionTokens),
		TotalTokens:      raw.Int64(KeyTotalTokens),
		Cost:             raw.Float64(KeyCost),
		InputData:        raw.payload(InputKeys),
		OutputData:       raw.payload(OutputKeys),
	}
}

// NormalizeAll normalizes spans preserving order.
func NormalizeAll(raws []RawSpan) []CallDetail {
	out := make([]CallDetail, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Normalize(raw))
	}
	return out
}

func (r RawSpan) timestamp(key string) Optional[Timestamp] {
	value, ok := r.Lookup(key)
	if !ok {
		return None[Timestamp]()
	}
	parsed, ok := ParseTimestamp(value)
	if !ok {
		return None[Timestamp]()
	}
	return Some(parsed)
}

func (r RawSpan) payload(keys []string) Optional[string] {
	for _, key := range keys {
		value, ok := r.Lookup(key)
		if !ok {
			continue
		}
		if text, ok := value.(string); ok {
			if text == "" {
				continue
			}
			return Some(text)
		}
		if text, ok := CoerceString(value); ok {
			return Some(text)
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			continue
		}
		// Null and empty structures count as absent.
		switch string(encoded) {
		case "null", "[]", "{}":
			continue
		}
		return Some(string(encoded))
	}
	return None[string]()
}

func durationMS(start, end Optional[Timestamp]) Optional[float64] {
	startTS, okStart := start.Get()
	endTS, okEnd := end.Get()
	if !okStart || !okEnd {
		return None[float64]()
	}
	elapsed := endTS.Time.Sub(startTS.Time)
	if elapsed < 0 {
		return None[float64]()
	}
	ms := float64(elapsed) / float64(1e6)
	return Some(math.Round(ms*100) / 100)
}
