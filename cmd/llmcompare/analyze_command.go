package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ongoingai/llmcompare/internal/config"
	"github.com/ongoingai/llmcompare/internal/critique"
	"github.com/ongoingai/llmcompare/internal/export"
	"github.com/ongoingai/llmcompare/internal/observability"
	"github.com/ongoingai/llmcompare/internal/pipeline"
	"github.com/ongoingai/llmcompare/internal/source"
	"github.com/ongoingai/llmcompare/internal/version"
)

type analyzeFlags struct {
	configPath      string
	envFile         string
	driver          string
	endpoint        string
	sourcePath      string
	project         string
	fallbackProject string
	minutesBack     int
	preset          string
	noCritique      bool
	critiqueModel   string
	autoApprove     bool
	exportCSV       bool
	exportExcel     bool
	exportJSON      bool
	exportMarkdown  bool
	outputDir       string
	maxRecent       int
	quiet           bool
	verbose         bool

	set map[string]bool
}

func parseAnalyzeFlags(args []string, errOut io.Writer) (analyzeFlags, error) {
	var flags analyzeFlags
	flagSet := newFlagSet("analyze", errOut)
	flagSet.StringVar(&flags.configPath, "config", defaultConfigPath, "Path to config file")
	flagSet.StringVar(&flags.envFile, "env-file", ".env", "Path to .env file loaded before the config")
	flagSet.StringVar(&flags.driver, "source", "", "Span source: phoenix, sqlite, postgres, or file")
	flagSet.StringVar(&flags.endpoint, "endpoint", "", "Phoenix endpoint URL")
	flagSet.StringVar(&flags.sourcePath, "source-path", "", "Path for the sqlite or file source")
	flagSet.StringVar(&flags.project, "project", "", "Project to analyze")
	flagSet.StringVar(&flags.fallbackProject, "fallback-project", "", "Project tried when the primary project has no spans")
	flagSet.IntVar(&flags.minutesBack, "minutes-back", 0, "Lookback window in minutes")
	flagSet.StringVar(&flags.preset, "preset", "", "Settings preset: "+strings.Join(config.PresetNames(), ", "))
	flagSet.BoolVar(&flags.noCritique, "no-critique", false, "Skip the efficiency critique")
	flagSet.StringVar(&flags.critiqueModel, "critique-model", "", "Model used for the efficiency critique")
	flagSet.BoolVar(&flags.autoApprove, "auto-approve", false, "Request critiques without asking")
	flagSet.BoolVar(&flags.exportCSV, "export-csv", false, "Export grouped calls to CSV")
	flagSet.BoolVar(&flags.exportExcel, "export-excel", false, "Export an XLSX workbook")
	flagSet.BoolVar(&flags.exportJSON, "export-json", false, "Export a JSON efficiency report")
	flagSet.BoolVar(&flags.exportMarkdown, "export-markdown", false, "Export a Markdown report")
	flagSet.StringVar(&flags.outputDir, "output-dir", "", "Directory for exported files")
	flagSet.IntVar(&flags.maxRecent, "max-recent", 0, "Maximum recent calls to display")
	flagSet.BoolVar(&flags.quiet, "quiet", false, "Only print groups, critiques, and exports")
	flagSet.BoolVar(&flags.verbose, "verbose", false, "Enable debug logging")

	if err := flagSet.Parse(args); err != nil {
		return analyzeFlags{}, err
	}
	if flagSet.NArg() != 0 {
		return analyzeFlags{}, fmt.Errorf("analyze does not accept positional arguments")
	}
	flags.set = make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) { flags.set[f.Name] = true })
	return flags, nil
}

// apply overlays command-line values onto cfg. Flags win over the file and
// the environment.
func (f analyzeFlags) apply(cfg *config.Config) error {
	if f.set["preset"] {
		if err := config.ApplyPreset(cfg, f.preset); err != nil {
			return err
		}
	}
	if f.set["source"] {
		cfg.Source.Driver = strings.ToLower(strings.TrimSpace(f.driver))
	}
	if f.set["endpoint"] {
		cfg.Source.Endpoint = strings.TrimSpace(f.endpoint)
	}
	if f.set["source-path"] {
		cfg.Source.Path = strings.TrimSpace(f.sourcePath)
	}
	if f.set["project"] {
		cfg.Analysis.Project = strings.TrimSpace(f.project)
	}
	if f.set["fallback-project"] {
		cfg.Analysis.FallbackProject = strings.TrimSpace(f.fallbackProject)
	}
	if f.set["minutes-back"] {
		cfg.Analysis.MinutesBack = f.minutesBack
	}
	if f.set["max-recent"] {
		cfg.Analysis.MaxRecentDisplay = f.maxRecent
	}
	if f.set["critique-model"] {
		cfg.Critique.Model = strings.TrimSpace(f.critiqueModel)
	}
	if f.set["output-dir"] {
		cfg.Export.OutputDir = strings.TrimSpace(f.outputDir)
	}
	switch {
	case f.noCritique:
		cfg.Critique.Policy = string(critique.PolicyNever)
	case f.autoApprove:
		cfg.Critique.Policy = string(critique.PolicyAuto)
	}

	requested := map[string]bool{
		config.FormatCSV:      f.exportCSV,
		config.FormatExcel:    f.exportExcel,
		config.FormatJSON:     f.exportJSON,
		config.FormatMarkdown: f.exportMarkdown,
	}
	for _, format := range []string{config.FormatCSV, config.FormatExcel, config.FormatJSON, config.FormatMarkdown} {
		if requested[format] && !containsString(cfg.Export.Formats, format) {
			cfg.Export.Formats = append(cfg.Export.Formats, format)
		}
	}
	return nil
}

func runAnalyze(args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	flags, err := parseAnalyzeFlags(args, errOut)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(errOut, err)
		}
		return 2
	}

	cfg, err := loadConfig(flags.envFile, flags.configPath)
	if err != nil {
		writeConfigError(errOut, configStageLoad, err)
		return 1
	}
	if err := flags.apply(&cfg); err != nil {
		writeConfigError(errOut, configStageValidate, err)
		return 2
	}
	if err := config.Validate(cfg); err != nil {
		writeConfigError(errOut, configStageValidate, err)
		return 1
	}
	policy, err := critique.ParsePolicy(cfg.Critique.Policy)
	if err != nil {
		writeConfigError(errOut, configStageValidate, err)
		return 1
	}

	logger := newLogger(errOut, flags.verbose, flags.quiet)

	ctx, stop := signalNotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelRuntime, otelErr := observability.Setup(ctx, cfg.Observability.OTel, version.String(), logger)
	if otelErr != nil {
		logger.Error("failed to initialize opentelemetry; continuing with instrumentation disabled", "error", otelErr)
	}
	defer shutdownOpenTelemetry(logger, otelRuntime, otelShutdownTimeout)

	src, err := source.Open(cfg.Source, otelRuntime.HTTPClient(time.Duration(cfg.Source.TimeoutMS)*time.Millisecond))
	if err != nil {
		fmt.Fprintf(errOut, "failed to open source: %s\n", observability.ScrubCredentials(err.Error()))
		return 1
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Error("failed to close source", "error", err)
		}
	}()

	requester, err := newRequester(cfg, otelRuntime, logger)
	if err != nil {
		fmt.Fprintf(errOut, "failed to configure critique: %s\n", observability.ScrubCredentials(err.Error()))
		return 1
	}

	console := newConsoleReporter(out, consoleOptions{
		Quiet:       flags.quiet,
		MaxRecent:   cfg.Analysis.MaxRecentDisplay,
		MinutesBack: cfg.Analysis.MinutesBack,
		Model:       requester.Model(),
		Now:         time.Now,
	})

	runner, err := pipeline.NewRunner(pipeline.Options{
		Source:          src,
		Project:         cfg.Analysis.Project,
		FallbackProject: cfg.Analysis.FallbackProject,
		Lookback:        time.Duration(cfg.Analysis.MinutesBack) * time.Minute,
		Critic:          requester,
		Policy:          policy,
		Approver:        newPromptApprover(in, out, requester.Model()),
		Exporter:        export.New(cfg.Export.OutputDir),
		Formats:         cfg.Export.Formats,
		Observability:   otelRuntime,
		Logger:          logger,
		Progress:        console.Progress,
	})
	if err != nil {
		fmt.Fprintf(errOut, "failed to start analysis: %v\n", err)
		return 1
	}

	console.Start(cfg)
	report, err := runner.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			fmt.Fprintln(errOut, "analysis interrupted")
			return 1
		}
		class := source.ClassifyError(err)
		logger.Error("analysis failed", "error", err, "error_class", class)
		fmt.Fprintf(errOut, "analysis failed (%s): %s\n", class, observability.ScrubCredentials(err.Error()))
		return 1
	}

	console.Finish(report)
	return 0
}

// newRequester builds the critique requester. Without an API key the
// requester is disabled and every group reports "disabled".
func newRequester(cfg config.Config, otelRuntime *observability.Runtime, logger *slog.Logger) (*critique.Requester, error) {
	timeout := time.Duration(cfg.Critique.TimeoutMS) * time.Millisecond
	costPerToken := decimal.NewFromFloat(cfg.Critique.CostPerToken)
	options := critique.Options{
		Model:         cfg.Critique.Model,
		MaxTokens:     cfg.Critique.MaxTokens,
		Temperature:   cfg.Critique.Temperature,
		CostPerToken:  &costPerToken,
		Timeout:       timeout,
		PreviewLength: cfg.Analysis.PreviewLength,
		Logger:        logger,
		Observability: otelRuntime,
	}
	if cfg.CritiqueEnabled() {
		completer, err := critique.NewOpenAICompleter(critique.OpenAIOptions{
			APIKey:     cfg.Critique.APIKey,
			BaseURL:    cfg.Critique.BaseURL,
			HTTPClient: otelRuntime.HTTPClient(timeout),
		})
		if err != nil {
			return nil, err
		}
		options.Completer = completer
	}
	return critique.NewRequester(options), nil
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if strings.EqualFold(strings.TrimSpace(value), target) {
			return true
		}
	}
	return false
}
