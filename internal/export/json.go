package export

import (
	"encoding/json"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ongoingai/llmcompare/internal/critique"
	"github.com/ongoingai/llmcompare/internal/version"
)

type jsonReport struct {
	Metadata  jsonMetadata            `json:"metadata"`
	Groups    []jsonGroup             `json:"groups"`
	Critiques map[string]jsonCritique `json:"critiques,omitempty"`
}

type jsonMetadata struct {
	ExportTime      string `json:"export_time"`
	RunID           string `json:"run_id,omitempty"`
	Project         string `json:"project,omitempty"`
	TotalGroups     int    `json:"total_groups"`
	AnalyzerVersion string `json:"analyzer_version"`
}

type jsonGroup struct {
	GroupID   int         `json:"group_id"`
	StartTime string      `json:"start_time"`
	Calls     []jsonCall  `json:"calls"`
	Summary   jsonSummary `json:"summary"`
}

type jsonCall struct {
	CallID      int             `json:"call_id"`
	Variant     string          `json:"variant"`
	SpanID      any             `json:"span_id"`
	Model       any             `json:"model"`
	Tokens      jsonTokens      `json:"tokens"`
	Performance jsonPerformance `json:"performance"`
	Cost        any             `json:"cost"`
	Status      any             `json:"status"`
}

type jsonTokens struct {
	Prompt     any `json:"prompt"`
	Completion any `json:"completion"`
	Total      any `json:"total"`
}

type jsonPerformance struct {
	DurationMS  any `json:"duration_ms"`
	Temperature any `json:"temperature"`
	MaxTokens   any `json:"max_tokens"`
}

type jsonSummary struct {
	TotalCalls        int             `json:"total_calls"`
	ModelsUsed        []string        `json:"models_used"`
	PromptTokens      int64           `json:"prompt_tokens"`
	CompletionTokens  int64           `json:"completion_tokens"`
	TotalTokens       int64           `json:"total_tokens"`
	AverageDurationMS float64         `json:"average_duration_ms"`
	TotalCostUSD      decimal.Decimal `json:"total_cost_usd"`
	AverageCostUSD    decimal.Decimal `json:"average_cost_usd"`
	CostReported      bool            `json:"cost_reported"`
}

type jsonCritique struct {
	GroupID    int                `json:"group_id"`
	Available  bool               `json:"available"`
	Reason     string             `json:"reason,omitempty"`
	Model      string             `json:"model"`
	Text       string             `json:"text,omitempty"`
	TokensUsed int                `json:"tokens_used"`
	CostUSD    decimal.Decimal    `json:"cost_usd"`
	Variants   []critique.Variant `json:"variants,omitempty"`
}

func writeJSON(path string, doc Document) error {
	encoded, err := json.MarshalIndent(buildJSONReport(doc), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(encoded, '\n'), 0o644)
}

func buildJSONReport(doc Document) jsonReport {
	exportTime := doc.GeneratedAt
	if exportTime.IsZero() {
		exportTime = time.Now()
	}
	report := jsonReport{
		Metadata: jsonMetadata{
			ExportTime:      exportTime.Format(time.RFC3339),
			RunID:           doc.RunID,
			Project:         doc.Project,
			TotalGroups:     len(doc.Groups),
			AnalyzerVersion: version.Version,
		},
		Groups: make([]jsonGroup, 0, len(doc.Groups)),
	}

	for _, group := range doc.Groups {
		out := jsonGroup{
			GroupID:   group.ID,
			StartTime: formatKey(group.Key),
			Calls:     make([]jsonCall, 0, len(group.Calls)),
			Summary: jsonSummary{
				TotalCalls:        group.Summary.CallCount,
				ModelsUsed:        group.Summary.Models,
				PromptTokens:      group.Summary.PromptTokens,
				CompletionTokens:  group.Summary.CompletionTokens,
				TotalTokens:       group.Summary.TotalTokens,
				AverageDurationMS: group.Summary.AvgDurationMS,
				TotalCostUSD:      group.Summary.TotalCostUSD,
				AverageCostUSD:    group.Summary.AvgCostUSD,
				CostReported:      group.Summary.CostReported,
			},
		}
		if out.Summary.ModelsUsed == nil {
			out.Summary.ModelsUsed = []string{}
		}
		for i, entry := range group.Calls {
			call := entry.Call
			out.Calls = append(out.Calls, jsonCall{
				CallID:  i + 1,
				Variant: critique.VariantLabel(i),
				SpanID:  call.SpanID.Value(),
				Model:   call.Model.Value(),
				Tokens: jsonTokens{
					Prompt:     call.PromptTokens.Value(),
					Completion: call.CompletionTokens.Value(),
					Total:      call.TotalTokens.Value(),
				},
				Performance: jsonPerformance{
					DurationMS:  call.DurationMS.Value(),
					Temperature: call.Temperature.Value(),
					MaxTokens:   call.MaxTokens.Value(),
				},
				Cost:   call.Cost.Value(),
				Status: call.Status.Value(),
			})
		}
		report.Groups = append(report.Groups, out)
	}

	if len(doc.Critiques) > 0 {
		ids := make([]int, 0, len(doc.Critiques))
		for id := range doc.Critiques {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		report.Critiques = make(map[string]jsonCritique, len(ids))
		for _, id := range ids {
			result := doc.Critiques[id]
			report.Critiques[strconv.Itoa(id)] = jsonCritique{
				GroupID:    id,
				Available:  result.Available,
				Reason:     result.Reason,
				Model:      result.Model,
				Text:       result.Text,
				TokensUsed: result.TokensUsed,
				CostUSD:    result.CostUSD,
				Variants:   result.Variants,
			}
		}
	}
	return report
}
