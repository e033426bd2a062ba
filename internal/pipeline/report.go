package pipeline

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ongoingai/llmcompare/internal/analysis"
	"github.com/ongoingai/llmcompare/internal/critique"
	"github.com/ongoingai/llmcompare/internal/export"
	"github.com/ongoingai/llmcompare/internal/spans"
)

// State is a step of the run lifecycle.
type State string

const (
	StateDisconnected      State = "disconnected"
	StateConnected         State = "connected"
	StateSpansFetched      State = "spans_fetched"
	StateFiltered          State = "filtered"
	StateGrouped           State = "grouped"
	StateCritiqueRequested State = "critique_requested"
	StateExported          State = "exported"
	StateDone              State = "done"
)

// Outcome is how a completed run ended. None of these are errors.
type Outcome string

const (
	OutcomeNoSpans            Outcome = "no_spans"
	OutcomeNoLLMSpans         Outcome = "no_llm_spans"
	OutcomeNoRecentCalls      Outcome = "no_recent_calls"
	OutcomeNoComparisonGroups Outcome = "no_comparison_groups"
	OutcomeGroupsFound        Outcome = "groups_found"
)

// Reasons critique was not attempted for a run.
const (
	CritiqueSkippedDisabled = "disabled"
	CritiqueSkippedPolicy   = "policy_never"
	CritiqueSkippedDeclined = "declined"
)

// Report is everything a run observed and produced.
type Report struct {
	RunID            string
	SourceName       string
	RequestedProject string
	// Project is the project whose spans were analyzed; it differs from
	// RequestedProject when the fallback was used.
	Project         string
	FallbackUsed    bool
	MissingProjects []string

	SpanCount int
	LLMCount  int
	Calls     []spans.CallDetail
	Grouping  analysis.Grouping
	Groups    []analysis.ComparisonGroup

	CritiqueSkipped string
	Critiques       map[int]critique.Result
	Exports         []export.Result

	Outcome   Outcome
	Trail     []State
	StartedAt time.Time
	Duration  time.Duration
}

// State returns the most recent state visited.
func (r *Report) State() State {
	if r == nil || len(r.Trail) == 0 {
		return StateDisconnected
	}
	return r.Trail[len(r.Trail)-1]
}

// CritiqueTokens sums the tokens consumed by available critiques.
func (r *Report) CritiqueTokens() int {
	total := 0
	for _, result := range r.Critiques {
		if result.Available {
			total += result.TokensUsed
		}
	}
	return total
}

// CritiqueCost sums the estimated cost of available critiques.
func (r *Report) CritiqueCost() decimal.Decimal {
	total := decimal.Zero
	for _, result := range r.Critiques {
		if result.Available {
			total = total.Add(result.CostUSD)
		}
	}
	return total
}
