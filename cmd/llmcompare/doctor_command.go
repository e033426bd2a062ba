package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ongoingai/llmcompare/internal/config"
	"github.com/ongoingai/llmcompare/internal/observability"
	"github.com/ongoingai/llmcompare/internal/source"
)

const defaultDoctorFormat = "text"

const doctorSourceTimeout = 5 * time.Second

const (
	doctorStatusPass = "pass"
	doctorStatusWarn = "warn"
	doctorStatusFail = "fail"
	doctorStatusSkip = "skip"
)

type doctorDocument struct {
	GeneratedAt   time.Time     `json:"generated_at"`
	ConfigPath    string        `json:"config_path"`
	OverallStatus string        `json:"overall_status"`
	Checks        []doctorCheck `json:"checks"`
}

type doctorCheck struct {
	Name    string   `json:"name"`
	Status  string   `json:"status"`
	Summary string   `json:"summary"`
	Details []string `json:"details,omitempty"`
}

func runDoctor(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := newFlagSet("doctor", errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	envFile := flagSet.String("env-file", ".env", "Path to .env file loaded before the config")
	format := flagSet.String("format", defaultDoctorFormat, "Output format: text or json")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "doctor does not accept positional arguments")
		return 2
	}

	normalizedFormat, err := normalizeTextJSONFormat("doctor", *format, defaultDoctorFormat)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	document := buildDoctorDocument(strings.TrimSpace(*envFile), strings.TrimSpace(*configPath))
	if err := writeDoctor(out, normalizedFormat, document); err != nil {
		fmt.Fprintf(errOut, "failed to write doctor output: %v\n", err)
		return 1
	}
	if document.OverallStatus == doctorStatusFail {
		return 1
	}
	return 0
}

func buildDoctorDocument(envFile, configPath string) doctorDocument {
	doc := doctorDocument{
		GeneratedAt: time.Now().UTC(),
		ConfigPath:  configPath,
		Checks:      make([]doctorCheck, 0, 4),
	}

	cfg, stage, err := loadAndValidateConfig(envFile, configPath)
	if err != nil {
		summary, skipped := "failed to load config", "skipped: config failed to load"
		if stage == configStageValidate {
			summary, skipped = "config is invalid", "skipped: config validation failed"
		}
		doc.Checks = append(doc.Checks,
			doctorCheck{
				Name:    "config",
				Status:  doctorStatusFail,
				Summary: summary,
				Details: []string{observability.ScrubCredentials(err.Error())},
			},
			doctorSkippedCheck("source", skipped),
			doctorSkippedCheck("critique", skipped),
			doctorSkippedCheck("export", skipped),
		)
		doc.OverallStatus = doctorOverallStatus(doc.Checks)
		return doc
	}

	doc.Checks = append(doc.Checks, doctorCheck{
		Name:    "config",
		Status:  doctorStatusPass,
		Summary: "loaded and validated configuration",
		Details: []string{
			fmt.Sprintf("config path: %s", nonEmpty(configPath, "(defaults)")),
			fmt.Sprintf("project: %s (fallback %s)", cfg.Analysis.Project, nonEmpty(cfg.Analysis.FallbackProject, "none")),
			fmt.Sprintf("lookback: %d minutes", cfg.Analysis.MinutesBack),
		},
	})
	doc.Checks = append(doc.Checks, runDoctorSourceCheck(cfg))
	doc.Checks = append(doc.Checks, runDoctorCritiqueCheck(cfg))
	doc.Checks = append(doc.Checks, runDoctorExportCheck(cfg))
	doc.OverallStatus = doctorOverallStatus(doc.Checks)
	return doc
}

func doctorSkippedCheck(name, summary string) doctorCheck {
	return doctorCheck{
		Name:    name,
		Status:  doctorStatusSkip,
		Summary: summary,
	}
}

func runDoctorSourceCheck(cfg config.Config) doctorCheck {
	check := doctorCheck{Name: "source"}
	src, err := source.Open(cfg.Source, nil)
	if err != nil {
		check.Status = doctorStatusFail
		check.Summary = "failed to initialize span source"
		check.Details = []string{observability.ScrubCredentials(err.Error())}
		return check
	}

	ctx, cancel := context.WithTimeout(context.Background(), doctorSourceTimeout)
	defer cancel()
	if err := src.Check(ctx); err != nil {
		check.Status = doctorStatusFail
		check.Summary = "span source connectivity check failed"
		check.Details = []string{
			fmt.Sprintf("error class: %s", source.ClassifyError(err)),
			observability.ScrubCredentials(err.Error()),
		}
		if closeErr := src.Close(); closeErr != nil {
			check.Details = append(check.Details, fmt.Sprintf("close source: %v", closeErr))
		}
		return check
	}

	check.Status = doctorStatusPass
	check.Summary = "connected to " + src.Name()
	switch cfg.Source.Driver {
	case config.DriverSQLite, config.DriverFile:
		path := strings.TrimSpace(cfg.Source.Path)
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		check.Details = []string{fmt.Sprintf("path: %s", path)}
	case config.DriverPhoenix:
		if strings.TrimSpace(cfg.Source.APIKey) == "" {
			check.Details = []string{"phoenix api key: not set"}
		} else {
			check.Details = []string{"phoenix api key: set"}
		}
	}
	if closeErr := src.Close(); closeErr != nil {
		check.Status = doctorStatusWarn
		check.Summary = "span source connectivity succeeded with close warning"
		check.Details = append(check.Details, fmt.Sprintf("close source: %v", closeErr))
	}
	return check
}

func runDoctorCritiqueCheck(cfg config.Config) doctorCheck {
	check := doctorCheck{Name: "critique"}
	details := []string{
		fmt.Sprintf("policy: %s", cfg.Critique.Policy),
		fmt.Sprintf("model: %s", cfg.Critique.Model),
	}
	if baseURL := strings.TrimSpace(cfg.Critique.BaseURL); baseURL != "" {
		details = append(details, fmt.Sprintf("base url: %s", baseURL))
	}
	check.Details = details

	if !cfg.CritiqueEnabled() {
		check.Status = doctorStatusWarn
		check.Summary = "critique is disabled: OPENAI_API_KEY is not set"
		return check
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Critique.Policy), "never") {
		check.Status = doctorStatusWarn
		check.Summary = "critique key is set but policy is never"
		return check
	}
	check.Status = doctorStatusPass
	check.Summary = "critique is enabled"
	return check
}

func runDoctorExportCheck(cfg config.Config) doctorCheck {
	check := doctorCheck{Name: "export"}
	dir := strings.TrimSpace(cfg.Export.OutputDir)
	if len(cfg.Export.Formats) == 0 {
		check.Status = doctorStatusPass
		check.Summary = "no export formats configured"
		check.Details = []string{fmt.Sprintf("output dir: %s", nonEmpty(dir, "(unset)"))}
		return check
	}

	check.Details = []string{
		fmt.Sprintf("formats: %s", strings.Join(cfg.Export.Formats, ", ")),
		fmt.Sprintf("output dir: %s", dir),
	}
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		check.Status = doctorStatusFail
		check.Summary = "export output path is not a directory"
	case err == nil:
		check.Status = doctorStatusPass
		check.Summary = "export output directory exists"
	case os.IsNotExist(err):
		check.Status = doctorStatusPass
		check.Summary = "export output directory will be created on first export"
	default:
		check.Status = doctorStatusFail
		check.Summary = "export output directory is not accessible"
		check.Details = append(check.Details, err.Error())
	}
	return check
}

func doctorOverallStatus(checks []doctorCheck) string {
	hasWarn := false
	for _, check := range checks {
		switch check.Status {
		case doctorStatusFail:
			return doctorStatusFail
		case doctorStatusWarn:
			hasWarn = true
		}
	}
	if hasWarn {
		return doctorStatusWarn
	}
	return doctorStatusPass
}

func writeDoctor(out io.Writer, format string, doc doctorDocument) error {
	switch format {
	case "json":
		return writeDoctorJSON(out, doc)
	default:
		return writeDoctorText(out, doc)
	}
}

func writeDoctorJSON(out io.Writer, doc doctorDocument) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

func writeDoctorText(out io.Writer, doc doctorDocument) error {
	fmt.Fprintln(out, "llmcompare doctor")

	meta := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(meta, "Generated at\t%s\n", doc.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(meta, "Config path\t%s\n", nonEmpty(doc.ConfigPath, defaultConfigPath))
	fmt.Fprintf(meta, "Overall status\t%s\n", strings.ToUpper(doc.OverallStatus))
	if err := meta.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nChecks")
	for _, check := range doc.Checks {
		fmt.Fprintf(out, "- [%s] %s: %s\n", strings.ToUpper(check.Status), check.Name, check.Summary)
		for _, detail := range check.Details {
			fmt.Fprintf(out, "  %s\n", detail)
		}
	}
	return nil
}
