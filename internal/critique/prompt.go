package critique

import (
	"encoding/json"
	"fmt"

	"github.com/ongoingai/llmcompare/internal/spans"
)

const DefaultPreviewLength = 200

// SystemPrompt frames the critique model's role.
const SystemPrompt = "You are an expert AI model performance analyst. Provide actionable insights about model efficiency and cost optimization."

const userPromptTemplate = `I ran the same prompt across multiple models simultaneously and tracked performance. Analyze efficiency in terms of cost vs quality.

Performance Data:
%s

Provide:
1. Comparison table (Variant, Model, Token Usage, Time)
2. Key observations about token efficiency in 2-3 lines
3. Recommendations for best cost/performance ratio in 2-3 lines
4. A conclusion on which model is the most efficient for this prompt based on the data provided.

Format with clear headers and bullet points.`

// Variant is one call of a comparison group as presented to the critique
// model. Missing values are encoded as "N/A".
type Variant struct {
	Label            string `json:"variant"`
	Model            any    `json:"model"`
	PromptTokens     any    `json:"prompt_tokens"`
	CompletionTokens any    `json:"completion_tokens"`
	TotalTokens      any    `json:"total_tokens"`
	DurationMS       any    `json:"duration_ms"`
	InputPreview     string `json:"input_preview"`
	OutputPreview    string `json:"output_preview"`
}

// VariantLabel returns "Variant A" for position 0, "Variant B" for 1, and
// continues with "Variant AA" after "Variant Z".
func VariantLabel(position int) string {
	return "Variant " + columnLetters(position)
}

func columnLetters(position int) string {
	if position < 0 {
		position = 0
	}
	var letters []byte
	for n := position + 1; n > 0; n = (n - 1) / 26 {
		letters = append([]byte{byte('A' + (n-1)%26)}, letters...)
	}
	return string(letters)
}

// Variants builds the variant rows for calls in group order.
func Variants(calls []spans.CallDetail, previewLength int) []Variant {
	if previewLength <= 0 {
		previewLength = DefaultPreviewLength
	}
	out := make([]Variant, 0, len(calls))
	for i, call := range calls {
		out = append(out, Variant{
			Label:            VariantLabel(i),
			Model:            call.Model.Value(),
			PromptTokens:     call.PromptTokens.Value(),
			CompletionTokens: call.CompletionTokens.Value(),
			TotalTokens:      call.TotalTokens.Value(),
			DurationMS:       call.DurationMS.Value(),
			InputPreview:     Preview(call.InputData, previewLength),
			OutputPreview:    Preview(call.OutputData, previewLength),
		})
	}
	return out
}

// Preview returns the first limit runes of a payload, or "N/A".
func Preview(payload spans.Optional[string], limit int) string {
	text, ok := payload.Get()
	if !ok {
		return spans.Missing
	}
	runes := []rune(text)
	if limit > 0 && len(runes) > limit {
		return string(runes[:limit])
	}
	return text
}

// BuildPrompt renders the user prompt for one comparison group.
func BuildPrompt(calls []spans.CallDetail, previewLength int) (string, error) {
	encoded, err := json.MarshalIndent(Variants(calls, previewLength), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode variants: %w", err)
	}
	return fmt.Sprintf(userPromptTemplate, encoded), nil
}
