package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/ongoingai/llmcompare/internal/observability"
	"github.com/ongoingai/llmcompare/internal/version"
)

const defaultConfigPath = "llmcompare.yaml"

const otelShutdownTimeout = 5 * time.Second

var signalNotifyContext = signal.NotifyContext

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 || (strings.HasPrefix(args[0], "-") && !isVersionFlag(args[0]) && !isHelpFlag(args[0])) {
		return runAnalyze(args, in, out, errOut)
	}

	switch args[0] {
	case "analyze":
		return runAnalyze(args[1:], in, out, errOut)
	case "version", "--version", "-v":
		fmt.Fprintln(out, version.String())
		return 0
	case "config":
		return runConfig(args[1:], out, errOut)
	case "doctor":
		return runDoctor(args[1:], out, errOut)
	case "help", "--help", "-h":
		printUsage(out)
		return 0
	default:
		printUsage(errOut)
		return 2
	}
}

func isVersionFlag(arg string) bool {
	return arg == "--version" || arg == "-v"
}

func isHelpFlag(arg string) bool {
	return arg == "--help" || arg == "-h"
}

func runConfig(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printConfigUsage(errOut)
		return 2
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], out, errOut)
	default:
		printConfigUsage(errOut)
		return 2
	}
}

func runConfigValidate(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := newFlagSet("config validate", errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	envFile := flagSet.String("env-file", ".env", "Path to .env file loaded before the config")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "config validate does not accept positional arguments")
		return 2
	}

	cfg, stage, err := loadAndValidateConfig(*envFile, *configPath)
	if err != nil {
		writeConfigError(errOut, stage, err)
		return 1
	}

	fmt.Fprintf(out, "config is valid: %s\n", *configPath)
	fmt.Fprintf(out, "source: %s\n", describeSource(cfg.Source))
	fmt.Fprintf(out, "project: %s (fallback %s)\n", cfg.Analysis.Project, nonEmpty(cfg.Analysis.FallbackProject, "none"))
	return 0
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  llmcompare [analyze] [--config path/to/llmcompare.yaml] [--source phoenix|sqlite|postgres|file] [--endpoint URL] [--project NAME] [--fallback-project NAME] [--minutes-back N] [--preset dev|prod|extended] [--no-critique] [--critique-model NAME] [--auto-approve] [--export-csv] [--export-excel] [--export-json] [--export-markdown] [--output-dir DIR] [--max-recent N] [--quiet] [--verbose]")
	fmt.Fprintln(out, "  llmcompare version")
	fmt.Fprintln(out, "  llmcompare config validate [--config path/to/llmcompare.yaml]")
	fmt.Fprintln(out, "  llmcompare doctor [--config path/to/llmcompare.yaml] [--format text|json]")
}

func printConfigUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  llmcompare config validate [--config path/to/llmcompare.yaml]")
}

func newLogger(errOut io.Writer, verbose, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelWarn
	}
	handler := slog.NewJSONHandler(errOut, &slog.HandlerOptions{Level: level})
	return slog.New(observability.NewTraceLogHandler(handler))
}

func shutdownOpenTelemetry(logger *slog.Logger, runtime *observability.Runtime, timeout time.Duration) {
	if runtime == nil || !runtime.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := runtime.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown opentelemetry providers", "error", err, "timeout", timeout.String())
	}
}
