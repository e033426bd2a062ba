package analysis

import (
	"time"

	"github.com/shopspring/decimal"
)

// GroupSummary aggregates one comparison group. Missing values are skipped
// when summing; averages divide by CallCount.
type GroupSummary struct {
	CallCount        int
	Models           []string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	AvgDurationMS    float64
	TotalCostUSD     decimal.Decimal
	AvgCostUSD       decimal.Decimal
	CostReported     bool
}

// Summarize computes the summary for calls. A call missing a duration still
// counts toward the divisor, which lowers the average.
func Summarize(calls []IndexedCall) GroupSummary {
	summary := GroupSummary{
		CallCount:    len(calls),
		Models:       []string{},
		TotalCostUSD: decimal.Zero,
		AvgCostUSD:   decimal.Zero,
	}
	if len(calls) == 0 {
		return summary
	}

	seenModels := make(map[string]struct{})
	var durationSum float64
	for _, entry := range calls {
		call := entry.Call
		if model, ok := call.Model.Get(); ok {
			if _, dup := seenModels[model]; !dup {
				seenModels[model] = struct{}{}
				summary.Models = append(summary.Models, model)
			}
		}
		if value, ok := call.PromptTokens.Get(); ok {
			summary.PromptTokens += value
		}
		if value, ok := call.CompletionTokens.Get(); ok {
			summary.CompletionTokens += value
		}
		if value, ok := call.TotalTokens.Get(); ok {
			summary.TotalTokens += value
		}
		if value, ok := call.DurationMS.Get(); ok {
			durationSum += value
		}
		if value, ok := call.Cost.Get(); ok {
			summary.TotalCostUSD = summary.TotalCostUSD.Add(decimal.NewFromFloat(value))
			summary.CostReported = true
		}
	}

	count := float64(len(calls))
	summary.AvgDurationMS = durationSum / count
	summary.AvgCostUSD = summary.TotalCostUSD.Div(decimal.NewFromInt(int64(len(calls))))
	return summary
}

// ComparisonGroup is a comparison bucket numbered for display. IDs start at 1
// in bucket order.
type ComparisonGroup struct {
	ID      int
	Key     time.Time
	Calls   []IndexedCall
	Summary GroupSummary
}

// SummarizeGroups numbers and summarizes the comparison buckets of grouping.
func SummarizeGroups(grouping Grouping) []ComparisonGroup {
	buckets := grouping.ComparisonGroups()
	out := make([]ComparisonGroup, 0, len(buckets))
	for i, bucket := range buckets {
		out = append(out, ComparisonGroup{
			ID:      i + 1,
			Key:     bucket.Key,
			Calls:   bucket.Calls,
			Summary: Summarize(bucket.Calls),
		})
	}
	return out
}
