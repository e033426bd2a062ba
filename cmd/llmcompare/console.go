package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ongoingai/llmcompare/internal/analysis"
	"github.com/ongoingai/llmcompare/internal/config"
	"github.com/ongoingai/llmcompare/internal/critique"
	"github.com/ongoingai/llmcompare/internal/pipeline"
	"github.com/ongoingai/llmcompare/internal/spans"
)

const keyLayout = "2006-01-02 15:04:05"

type consoleOptions struct {
	Quiet       bool
	MaxRecent   int
	MinutesBack int
	Model       string
	Now         func() time.Time
}

// consoleReporter renders run progress and results for a terminal. In quiet
// mode only groups, critiques, exports, and the final line are printed.
type consoleReporter struct {
	out  io.Writer
	opts consoleOptions
}

func newConsoleReporter(out io.Writer, opts consoleOptions) *consoleReporter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &consoleReporter{out: out, opts: opts}
}

func (c *consoleReporter) Start(cfg config.Config) {
	if c.opts.Quiet {
		return
	}
	fmt.Fprintln(c.out, "LLM Comparison Analyzer")
	meta := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(meta, "Source\t%s\n", describeSource(cfg.Source))
	fmt.Fprintf(meta, "Project\t%s (fallback %s)\n", cfg.Analysis.Project, nonEmpty(cfg.Analysis.FallbackProject, "none"))
	fmt.Fprintf(meta, "Lookback\t%d minutes\n", cfg.Analysis.MinutesBack)
	if cfg.Preset != "" {
		fmt.Fprintf(meta, "Preset\t%s\n", cfg.Preset)
	}
	_ = meta.Flush()
	fmt.Fprintln(c.out)
}

// Progress is the pipeline's state callback.
func (c *consoleReporter) Progress(state pipeline.State, report *pipeline.Report) {
	switch state {
	case pipeline.StateConnected:
		c.linef("Connected to %s", report.SourceName)
	case pipeline.StateSpansFetched:
		for _, project := range report.MissingProjects {
			c.linef("Project %q not found", project)
		}
		if report.FallbackUsed {
			c.linef("No spans in project %q, using fallback project %q", report.RequestedProject, report.Project)
		}
		if report.SpanCount > 0 {
			c.linef("Found %s spans in project %q", humanize.Comma(int64(report.SpanCount)), report.Project)
		}
	case pipeline.StateFiltered:
		if report.LLMCount > 0 {
			c.linef("Found %s LLM calls", humanize.Comma(int64(report.LLMCount)))
		}
	case pipeline.StateGrouped:
		window := report.Grouping.Window
		c.linef("Looking for calls from the past %d minutes (since %s UTC)", int(window.Lookback/time.Minute), window.Cutoff.UTC().Format(keyLayout))
		c.linef("Found %d recent LLM calls", len(report.Grouping.Recent))
		c.printGroups(report.Groups)
	case pipeline.StateCritiqueRequested:
		c.linef("Requesting critique %d of %d from %s", len(report.Critiques)+1, len(report.Groups), nonEmpty(c.opts.Model, "the critique model"))
	}
}

// Finish prints results that exist once the run is complete.
func (c *consoleReporter) Finish(report *pipeline.Report) {
	switch report.Outcome {
	case pipeline.OutcomeNoSpans:
		fmt.Fprintln(c.out, "No spans found. Make sure your application is sending traces to the source.")
	case pipeline.OutcomeNoLLMSpans:
		fmt.Fprintln(c.out, "No LLM calls found among the fetched spans.")
	case pipeline.OutcomeNoRecentCalls:
		fmt.Fprintf(c.out, "No LLM calls in the last %d minutes.\n", c.opts.MinutesBack)
	case pipeline.OutcomeNoComparisonGroups:
		fmt.Fprintln(c.out, "No comparison groups found: no two recent calls share a start time.")
	}

	c.printCritiques(report)
	if !c.opts.Quiet {
		c.printRecent(report.Grouping.Recent)
	}
	c.printExports(report)

	fmt.Fprintf(c.out, "\nAnalysis complete in %s (run %s)\n", report.Duration.Round(time.Millisecond), report.RunID)
}

func (c *consoleReporter) linef(format string, args ...any) {
	if c.opts.Quiet {
		return
	}
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *consoleReporter) printGroups(groups []analysis.ComparisonGroup) {
	if len(groups) == 0 {
		return
	}
	fmt.Fprintf(c.out, "\n%d comparison groups (calls with identical start times)\n", len(groups))
	for _, group := range groups {
		fmt.Fprintf(c.out, "\nGroup %d  %s UTC  %d calls\n", group.ID, group.Key.UTC().Format(keyLayout), len(group.Calls))
		table := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(table, "  VARIANT\tCALL\tMODEL\tPROMPT\tCOMPLETION\tTOTAL\tDURATION MS\tSTATUS")
		for position, entry := range group.Calls {
			call := entry.Call
			fmt.Fprintf(table, "  %s\t#%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				strings.TrimPrefix(critique.VariantLabel(position), "Variant "),
				entry.Index+1,
				call.Model.String(),
				tokenText(call.PromptTokens),
				tokenText(call.CompletionTokens),
				tokenText(call.TotalTokens),
				call.DurationMS.String(),
				call.Status.String(),
			)
		}
		_ = table.Flush()

		summary := group.Summary
		fmt.Fprintf(c.out, "  models: %s | tokens: %s | avg duration: %.2f ms",
			nonEmpty(strings.Join(summary.Models, ", "), spans.Missing),
			humanize.Comma(summary.TotalTokens),
			summary.AvgDurationMS,
		)
		if summary.CostReported {
			fmt.Fprintf(c.out, " | cost: $%s", summary.TotalCostUSD.StringFixed(6))
		}
		fmt.Fprintln(c.out)
	}
}

func (c *consoleReporter) printCritiques(report *pipeline.Report) {
	switch report.CritiqueSkipped {
	case pipeline.CritiqueSkippedDisabled:
		if len(report.Groups) > 0 {
			fmt.Fprintln(c.out, "\nCritique disabled: set OPENAI_API_KEY to enable efficiency analysis.")
		}
		return
	case pipeline.CritiqueSkippedDeclined:
		fmt.Fprintln(c.out, "\nSkipping critique.")
		return
	case pipeline.CritiqueSkippedPolicy:
		return
	}
	if len(report.Critiques) == 0 {
		return
	}

	ids := make([]int, 0, len(report.Critiques))
	for id := range report.Critiques {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		result := report.Critiques[id]
		if !result.Available {
			fmt.Fprintf(c.out, "\nCritique unavailable for group %d (%s)\n", id, result.Reason)
			continue
		}
		fmt.Fprintf(c.out, "\nEfficiency analysis for group %d (%s)\n", id, result.Model)
		fmt.Fprintln(c.out, strings.TrimSpace(result.Text))
		fmt.Fprintf(c.out, "Critique cost: ~$%s (%s tokens)\n", result.CostUSD.StringFixed(6), humanize.Comma(int64(result.TokensUsed)))
	}
	if tokens := report.CritiqueTokens(); tokens > 0 {
		fmt.Fprintf(c.out, "\nTotal critique cost: ~$%s (%s tokens)\n", report.CritiqueCost().StringFixed(6), humanize.Comma(int64(tokens)))
	}
}

func (c *consoleReporter) printRecent(recent []analysis.IndexedCall) {
	if len(recent) == 0 || c.opts.MaxRecent == 0 {
		return
	}
	shown := recent
	if len(shown) > c.opts.MaxRecent {
		shown = shown[:c.opts.MaxRecent]
	}

	fmt.Fprintf(c.out, "\nRecent LLM calls (%d)\n", len(recent))
	table := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(table, "  CALL\tSTART\tAGE\tMODEL\tTOKENS\tDURATION MS")
	now := c.opts.Now()
	for _, entry := range shown {
		call := entry.Call
		start, age := spans.Missing, spans.Missing
		if ts, ok := call.StartTime.Get(); ok {
			start = ts.Time.UTC().Format(keyLayout)
			age = humanize.RelTime(ts.Time, now, "ago", "from now")
		}
		fmt.Fprintf(table, "  #%d\t%s\t%s\t%s\t%s\t%s\n",
			entry.Index+1, start, age, call.Model.String(), tokenText(call.TotalTokens), call.DurationMS.String())
	}
	_ = table.Flush()
	if extra := len(recent) - len(shown); extra > 0 {
		fmt.Fprintf(c.out, "  ... and %d more\n", extra)
	}
}

func (c *consoleReporter) printExports(report *pipeline.Report) {
	if len(report.Exports) == 0 {
		return
	}
	fmt.Fprintln(c.out, "\nExports")
	for _, result := range report.Exports {
		if result.Err != nil {
			fmt.Fprintf(c.out, "  %s: failed: %v\n", result.Format, result.Err)
			continue
		}
		fmt.Fprintf(c.out, "  %s: %s\n", result.Format, result.Path)
	}
}

func tokenText(value spans.Optional[int64]) string {
	if tokens, ok := value.Get(); ok {
		return humanize.Comma(tokens)
	}
	return spans.Missing
}
