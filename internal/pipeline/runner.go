package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ongoingai/llmcompare/internal/analysis"
	"github.com/ongoingai/llmcompare/internal/critique"
	"github.com/ongoingai/llmcompare/internal/export"
	"github.com/ongoingai/llmcompare/internal/observability"
	"github.com/ongoingai/llmcompare/internal/source"
	"github.com/ongoingai/llmcompare/internal/spans"
)

// Critic produces a critique for one comparison group.
type Critic interface {
	Enabled() bool
	Critique(ctx context.Context, groupID int, calls []spans.CallDetail) critique.Result
}

// Approver confirms that groupCount groups may be sent for critique.
type Approver interface {
	Approve(ctx context.Context, groupCount int) (bool, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, groupCount int) (bool, error)

func (f ApproverFunc) Approve(ctx context.Context, groupCount int) (bool, error) {
	return f(ctx, groupCount)
}

type Options struct {
	Source          source.Source
	Project         string
	FallbackProject string
	Lookback        time.Duration

	Critic   Critic
	Policy   critique.Policy
	Approver Approver

	Exporter *export.Exporter
	Formats  []string

	Observability *observability.Runtime
	Logger        *slog.Logger
	Now           func() time.Time
	RunID         string

	// Progress, when set, is called after every state transition.
	Progress func(state State, report *Report)
}

type Runner struct {
	source   source.Source
	project  string
	fallback string
	lookback time.Duration
	critic   Critic
	policy   critique.Policy
	approver Approver
	exporter *export.Exporter
	formats  []string
	obs      *observability.Runtime
	logger   *slog.Logger
	now      func() time.Time
	runID    string
	progress func(State, *Report)
}

func NewRunner(options Options) (*Runner, error) {
	if options.Source == nil {
		return nil, errors.New("pipeline: source is required")
	}
	project := strings.TrimSpace(options.Project)
	if project == "" {
		return nil, errors.New("pipeline: project is required")
	}
	if options.Lookback <= 0 {
		return nil, fmt.Errorf("pipeline: lookback must be > 0 (got %s)", options.Lookback)
	}

	r := &Runner{
		source:   options.Source,
		project:  project,
		fallback: strings.TrimSpace(options.FallbackProject),
		lookback: options.Lookback,
		critic:   options.Critic,
		policy:   options.Policy,
		approver: options.Approver,
		exporter: options.Exporter,
		formats:  options.Formats,
		obs:      options.Observability,
		logger:   options.Logger,
		now:      options.Now,
		runID:    strings.TrimSpace(options.RunID),
		progress: options.Progress,
	}
	if r.policy == "" {
		r.policy = critique.PolicyAsk
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	return r, nil
}

// Run executes one analysis. Empty data ends the run early with an Outcome
// and a nil error; source failures and cancellation return an error along
// with the partial report.
func (r *Runner) Run(ctx context.Context) (report *Report, err error) {
	started := r.now()
	report = &Report{
		RunID:            r.runID,
		SourceName:       r.source.Name(),
		RequestedProject: r.project,
		Project:          r.project,
		Critiques:        make(map[int]critique.Result),
		StartedAt:        started,
	}
	r.visit(report, StateDisconnected)

	ctx, end := r.obs.StartStage(ctx, "run",
		attribute.String("run.id", r.runID),
		attribute.String("project", r.project),
	)
	defer func() { end(err) }()

	logger := r.logger.With("run_id", r.runID)

	if err := r.connect(ctx); err != nil {
		return report, err
	}
	r.visit(report, StateConnected)

	raws, err := r.fetchWithFallback(ctx, report, logger)
	if err != nil {
		return report, err
	}
	report.SpanCount = len(raws)
	r.visit(report, StateSpansFetched)
	if len(raws) == 0 {
		return r.finish(report, OutcomeNoSpans, logger), nil
	}

	report.Calls = spans.FilterLLM(spans.NormalizeAll(raws))
	report.LLMCount = len(report.Calls)
	r.visit(report, StateFiltered)
	if report.LLMCount == 0 {
		return r.finish(report, OutcomeNoLLMSpans, logger), nil
	}

	report.Grouping = analysis.GroupByStartTime(report.Calls, analysis.NewWindow(started, r.lookback))
	report.Groups = analysis.SummarizeGroups(report.Grouping)
	r.obs.RecordGroupsDetected(ctx, len(report.Groups))
	r.visit(report, StateGrouped)
	if len(report.Grouping.Recent) == 0 {
		return r.finish(report, OutcomeNoRecentCalls, logger), nil
	}
	if len(report.Groups) == 0 {
		return r.finish(report, OutcomeNoComparisonGroups, logger), nil
	}
	report.Outcome = OutcomeGroupsFound

	if err := r.critiqueGroups(ctx, report, logger); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	r.export(ctx, report, logger)
	return r.finish(report, OutcomeGroupsFound, logger), nil
}

func (r *Runner) connect(ctx context.Context) (err error) {
	ctx, end := r.obs.StartStage(ctx, "connect", attribute.String("source", r.source.Name()))
	defer func() { end(err) }()

	if err := r.source.Check(ctx); err != nil {
		return fmt.Errorf("connect to %s: %w", r.source.Name(), err)
	}
	return nil
}

// fetchWithFallback reads the primary project and, when it has no spans or
// does not exist, the fallback project exactly once.
func (r *Runner) fetchWithFallback(ctx context.Context, report *Report, logger *slog.Logger) ([]spans.RawSpan, error) {
	raws, err := r.fetchProject(ctx, r.project)
	switch {
	case errors.Is(err, source.ErrProjectNotFound):
		report.MissingProjects = append(report.MissingProjects, r.project)
	case err != nil:
		return nil, err
	case len(raws) > 0:
		return raws, nil
	}

	if r.fallback == "" || r.fallback == r.project {
		return nil, nil
	}
	logger.Info("no spans in project, trying fallback", "project", r.project, "fallback_project", r.fallback)
	report.FallbackUsed = true

	raws, err = r.fetchProject(ctx, r.fallback)
	switch {
	case errors.Is(err, source.ErrProjectNotFound):
		report.MissingProjects = append(report.MissingProjects, r.fallback)
		return nil, nil
	case err != nil:
		return nil, err
	}
	if len(raws) > 0 {
		report.Project = r.fallback
	}
	return raws, nil
}

func (r *Runner) fetchProject(ctx context.Context, project string) (raws []spans.RawSpan, err error) {
	ctx, end := r.obs.StartStage(ctx, "fetch", attribute.String("project", project))
	defer func() {
		if errors.Is(err, source.ErrProjectNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	raws, err = r.source.Fetch(ctx, project)
	if err != nil {
		if errors.Is(err, source.ErrProjectNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("fetch spans for project %q: %w", project, err)
	}
	r.obs.RecordSpansFetched(ctx, r.source.Name(), project, len(raws))
	return raws, nil
}

func (r *Runner) critiqueGroups(ctx context.Context, report *Report, logger *slog.Logger) error {
	switch {
	case r.critic == nil || !r.critic.Enabled():
		report.CritiqueSkipped = CritiqueSkippedDisabled
		return nil
	case r.policy == critique.PolicyNever:
		report.CritiqueSkipped = CritiqueSkippedPolicy
		return nil
	case r.policy == critique.PolicyAsk:
		approved, err := r.approve(ctx, len(report.Groups))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("critique approval: %w", err)
		}
		if !approved {
			report.CritiqueSkipped = CritiqueSkippedDeclined
			logger.Info("critique declined", "groups", len(report.Groups))
			return nil
		}
	}

	for _, group := range report.Groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.visit(report, StateCritiqueRequested)

		stageCtx, end := r.obs.StartStage(ctx, "critique", attribute.Int("group.id", group.ID))
		result := r.critic.Critique(stageCtx, group.ID, groupCalls(group))
		if result.Available {
			end(nil)
		} else {
			end(errors.New("critique unavailable: " + result.Reason))
		}
		report.Critiques[group.ID] = result
	}
	return ctx.Err()
}

func (r *Runner) approve(ctx context.Context, groupCount int) (bool, error) {
	if r.approver == nil {
		return false, nil
	}
	return r.approver.Approve(ctx, groupCount)
}

func (r *Runner) export(ctx context.Context, report *Report, logger *slog.Logger) {
	if r.exporter == nil || len(r.formats) == 0 {
		return
	}
	_, end := r.obs.StartStage(ctx, "export", attribute.StringSlice("formats", r.formats))

	report.Exports = r.exporter.ExportAll(r.formats, export.Document{
		RunID:       report.RunID,
		Project:     report.Project,
		GeneratedAt: report.StartedAt,
		Groups:      report.Groups,
		Critiques:   report.Critiques,
	})

	var failed error
	for _, result := range report.Exports {
		if result.Err != nil {
			failed = errors.Join(failed, result.Err)
			logger.Warn("export failed", "format", result.Format, "error", observability.ScrubCredentials(result.Err.Error()))
			continue
		}
		logger.Info("export written", "format", result.Format, "path", result.Path)
	}
	end(failed)
	r.visit(report, StateExported)
}

func (r *Runner) finish(report *Report, outcome Outcome, logger *slog.Logger) *Report {
	report.Outcome = outcome
	report.Duration = r.now().Sub(report.StartedAt)
	r.visit(report, StateDone)
	logger.Info(
		"analysis complete",
		"outcome", string(outcome),
		"project", report.Project,
		"spans", report.SpanCount,
		"llm_calls", report.LLMCount,
		"groups", len(report.Groups),
		"critiques", len(report.Critiques),
	)
	return report
}

func (r *Runner) visit(report *Report, state State) {
	report.Trail = append(report.Trail, state)
	if r.progress != nil {
		r.progress(state, report)
	}
}

func groupCalls(group analysis.ComparisonGroup) []spans.CallDetail {
	out := make([]spans.CallDetail, 0, len(group.Calls))
	for _, entry := range group.Calls {
		out = append(out, entry.Call)
	}
	return out
}
