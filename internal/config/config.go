package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Preset        string              `yaml:"preset"`
	Source        SourceConfig        `yaml:"source"`
	Analysis      AnalysisConfig      `yaml:"analysis"`
	Critique      CritiqueConfig      `yaml:"critique"`
	Export        ExportConfig        `yaml:"export"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// SourceConfig selects where spans are read from.
type SourceConfig struct {
	Driver    string `yaml:"driver"`
	Endpoint  string `yaml:"endpoint"`
	Path      string `yaml:"path"`
	DSN       string `yaml:"dsn"`
	APIKey    string `yaml:"api_key"`
	TimeoutMS int    `yaml:"timeout_ms"`
	PageSize  int    `yaml:"page_size"`
	MaxPages  int    `yaml:"max_pages"`
}

type AnalysisConfig struct {
	Project          string `yaml:"project"`
	FallbackProject  string `yaml:"fallback_project"`
	MinutesBack      int    `yaml:"minutes_back"`
	MaxRecentDisplay int    `yaml:"max_recent_display"`
	PreviewLength    int    `yaml:"preview_length"`
}

type CritiqueConfig struct {
	Policy       string  `yaml:"policy"`
	Model        string  `yaml:"model"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
	CostPerToken float64 `yaml:"cost_per_token"`
	TimeoutMS    int     `yaml:"timeout_ms"`
	BaseURL      string  `yaml:"base_url"`
	APIKey       string  `yaml:"api_key"`
}

type ExportConfig struct {
	OutputDir string   `yaml:"output_dir"`
	Formats   []string `yaml:"formats"`
}

type ObservabilityConfig struct {
	OTel OTelConfig `yaml:"otel"`
}

type OTelConfig struct {
	Enabled                bool    `yaml:"enabled"`
	Endpoint               string  `yaml:"endpoint"`
	Insecure               bool    `yaml:"insecure"`
	ServiceName            string  `yaml:"service_name"`
	TracesEnabled          bool    `yaml:"traces_enabled"`
	MetricsEnabled         bool    `yaml:"metrics_enabled"`
	SamplingRatio          float64 `yaml:"sampling_ratio"`
	ExportTimeoutMS        int     `yaml:"export_timeout_ms"`
	MetricExportIntervalMS int     `yaml:"metric_export_interval_ms"`
}

// Source drivers.
const (
	DriverPhoenix  = "phoenix"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverFile     = "file"
)

// Export formats.
const (
	FormatCSV      = "csv"
	FormatExcel    = "excel"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

const (
	defaultOTELEndpoint               = "localhost:4318"
	defaultOTELServiceName            = "llmcompare"
	defaultOTELSamplingRatio          = 1.0
	defaultOTELExportTimeoutMS        = 3000
	defaultOTELMetricExportIntervalMS = 10000
)

func Default() Config {
	return Config{
		Source: SourceConfig{
			Driver:    DriverPhoenix,
			Endpoint:  "http://localhost:6006",
			TimeoutMS: 30000,
			PageSize:  1000,
			MaxPages:  50,
		},
		Analysis: AnalysisConfig{
			Project:          "playground",
			FallbackProject:  "default",
			MinutesBack:      15,
			MaxRecentDisplay: 10,
			PreviewLength:    200,
		},
		Critique: CritiqueConfig{
			Policy:       "ask",
			Model:        "gpt-4o-mini",
			MaxTokens:    1000,
			Temperature:  0.3,
			CostPerToken: 0.000002,
			TimeoutMS:    60000,
		},
		Export: ExportConfig{
			OutputDir: "exports",
		},
		Observability: ObservabilityConfig{
			OTel: OTelConfig{
				Enabled:                false,
				Endpoint:               defaultOTELEndpoint,
				Insecure:               true,
				ServiceName:            defaultOTELServiceName,
				TracesEnabled:          true,
				MetricsEnabled:         true,
				SamplingRatio:          defaultOTELSamplingRatio,
				ExportTimeoutMS:        defaultOTELExportTimeoutMS,
				MetricExportIntervalMS: defaultOTELMetricExportIntervalMS,
			},
		},
	}
}

// Preset is a named bundle of analysis settings.
type Preset struct {
	MinutesBack       int
	MaxRecentDisplay  int
	CritiqueMaxTokens int
}

var presets = map[string]Preset{
	"dev":      {MinutesBack: 5, MaxRecentDisplay: 5},
	"prod":     {MinutesBack: 60, MaxRecentDisplay: 20},
	"extended": {MinutesBack: 120, MaxRecentDisplay: 25, CritiqueMaxTokens: 2000},
}

// PresetNames lists the supported preset names.
func PresetNames() []string {
	return []string{"dev", "prod", "extended"}
}

// ApplyPreset overlays the named preset. An empty name is a no-op.
func ApplyPreset(cfg *Config, name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil
	}
	preset, ok := presets[name]
	if !ok {
		return fmt.Errorf("unknown preset %q: must be one of %s", name, strings.Join(PresetNames(), ", "))
	}
	cfg.Preset = name
	cfg.Analysis.MinutesBack = preset.MinutesBack
	cfg.Analysis.MaxRecentDisplay = preset.MaxRecentDisplay
	if preset.CritiqueMaxTokens > 0 {
		cfg.Critique.MaxTokens = preset.CritiqueMaxTokens
	}
	return nil
}

// LoadDotEnv reads .env-style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %q: %w", path, err)
		}
	}
	return nil
}

// Load layers the YAML file at path (if any) over Default, applies the
// preset named in the file, then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			decoder := yaml.NewDecoder(bytes.NewReader(data))
			decoder.KnownFields(true)
			decodeErr := decoder.Decode(&cfg)
			if errors.Is(decodeErr, io.EOF) {
				decodeErr = nil
			}
			if decodeErr != nil {
				return Config{}, fmt.Errorf("parse yaml %q: %w", path, decodeErr)
			}
			var trailing any
			trailingErr := decoder.Decode(&trailing)
			if trailingErr != nil && !errors.Is(trailingErr, io.EOF) {
				return Config{}, fmt.Errorf("parse yaml %q: %w", path, trailingErr)
			}
			if trailing != nil {
				return Config{}, fmt.Errorf("parse yaml %q: multiple yaml documents are not supported", path)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	if err := ApplyPreset(&cfg, cfg.Preset); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// CritiqueEnabled reports whether a critique API key is configured.
func (cfg Config) CritiqueEnabled() bool {
	return strings.TrimSpace(cfg.Critique.APIKey) != ""
}

// Validate checks configuration invariants required at runtime.
func Validate(cfg Config) error {
	if err := validateSource(cfg.Source); err != nil {
		return err
	}

	if strings.TrimSpace(cfg.Analysis.Project) == "" {
		return errors.New("analysis.project must not be empty")
	}
	if cfg.Analysis.MinutesBack <= 0 {
		return fmt.Errorf("analysis.minutes_back must be > 0 (got %d)", cfg.Analysis.MinutesBack)
	}
	if cfg.Analysis.MaxRecentDisplay < 0 {
		return fmt.Errorf("analysis.max_recent_display must be >= 0 (got %d)", cfg.Analysis.MaxRecentDisplay)
	}
	if cfg.Analysis.PreviewLength <= 0 {
		return fmt.Errorf("analysis.preview_length must be > 0 (got %d)", cfg.Analysis.PreviewLength)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Critique.Policy)) {
	case "auto", "ask", "never":
	default:
		return fmt.Errorf("critique.policy must be one of auto, ask, never (got %q)", cfg.Critique.Policy)
	}
	if strings.TrimSpace(cfg.Critique.Model) == "" {
		return errors.New("critique.model must not be empty")
	}
	if cfg.Critique.MaxTokens <= 0 {
		return fmt.Errorf("critique.max_tokens must be > 0 (got %d)", cfg.Critique.MaxTokens)
	}
	if cfg.Critique.Temperature < 0 || cfg.Critique.Temperature > 2 {
		return fmt.Errorf("critique.temperature must be between 0 and 2 (got %f)", cfg.Critique.Temperature)
	}
	if cfg.Critique.CostPerToken < 0 {
		return fmt.Errorf("critique.cost_per_token must be >= 0 (got %f)", cfg.Critique.CostPerToken)
	}
	if cfg.Critique.TimeoutMS <= 0 {
		return fmt.Errorf("critique.timeout_ms must be > 0 (got %d)", cfg.Critique.TimeoutMS)
	}
	if baseURL := strings.TrimSpace(cfg.Critique.BaseURL); baseURL != "" {
		if err := validateHTTPURL("critique.base_url", baseURL); err != nil {
			return err
		}
	}

	for _, format := range cfg.Export.Formats {
		switch strings.ToLower(strings.TrimSpace(format)) {
		case FormatCSV, FormatExcel, FormatJSON, FormatMarkdown:
		default:
			return fmt.Errorf("export.formats entries must be one of csv, excel, json, markdown (got %q)", format)
		}
	}
	if len(cfg.Export.Formats) > 0 && strings.TrimSpace(cfg.Export.OutputDir) == "" {
		return errors.New("export.output_dir is required when export.formats is set")
	}

	return validateOTelConfig(cfg.Observability.OTel)
}

func validateSource(cfg SourceConfig) error {
	switch strings.TrimSpace(cfg.Driver) {
	case DriverPhoenix:
		if err := validateHTTPURL("source.endpoint", cfg.Endpoint); err != nil {
			return err
		}
		if cfg.PageSize <= 0 {
			return fmt.Errorf("source.page_size must be > 0 (got %d)", cfg.PageSize)
		}
		if cfg.MaxPages <= 0 {
			return fmt.Errorf("source.max_pages must be > 0 (got %d)", cfg.MaxPages)
		}
	case DriverSQLite:
		if strings.TrimSpace(cfg.Path) == "" {
			return errors.New("source.path is required when source.driver=sqlite")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return errors.New("source.dsn is required when source.driver=postgres")
		}
	case DriverFile:
		if strings.TrimSpace(cfg.Path) == "" {
			return errors.New("source.path is required when source.driver=file")
		}
	default:
		return fmt.Errorf("source.driver must be one of phoenix, sqlite, postgres, file (got %q)", cfg.Driver)
	}
	if cfg.TimeoutMS <= 0 {
		return fmt.Errorf("source.timeout_ms must be > 0 (got %d)", cfg.TimeoutMS)
	}
	return nil
}

func validateHTTPURL(name, raw string) error {
	value := strings.TrimSpace(raw)
	if value == "" {
		return fmt.Errorf("%s is required", name)
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	if strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return fmt.Errorf("%s must include scheme and host (got %q)", name, raw)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return nil
	default:
		return fmt.Errorf("%s scheme must be http or https (got %q)", name, parsed.Scheme)
	}
}

func validateOTelConfig(cfg OTelConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return errors.New("observability.otel.endpoint is required when observability.otel.enabled=true")
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		return errors.New("observability.otel.service_name is required when observability.otel.enabled=true")
	}
	if !cfg.TracesEnabled && !cfg.MetricsEnabled {
		return errors.New("observability.otel requires traces_enabled and/or metrics_enabled when enabled")
	}
	if cfg.SamplingRatio < 0 || cfg.SamplingRatio > 1 {
		return fmt.Errorf("observability.otel.sampling_ratio must be between 0 and 1 (got %f)", cfg.SamplingRatio)
	}
	if cfg.ExportTimeoutMS <= 0 {
		return fmt.Errorf("observability.otel.export_timeout_ms must be > 0 (got %d)", cfg.ExportTimeoutMS)
	}
	if cfg.MetricExportIntervalMS <= 0 {
		return fmt.Errorf("observability.otel.metric_export_interval_ms must be > 0 (got %d)", cfg.MetricExportIntervalMS)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); apiKey != "" {
		cfg.Critique.APIKey = apiKey
	}
	if baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); baseURL != "" {
		cfg.Critique.BaseURL = baseURL
	}
	if apiKey := strings.TrimSpace(os.Getenv("PHOENIX_API_KEY")); apiKey != "" {
		cfg.Source.APIKey = apiKey
	}

	if driver := os.Getenv("LLMCOMPARE_SOURCE_DRIVER"); driver != "" {
		cfg.Source.Driver = strings.ToLower(strings.TrimSpace(driver))
	}
	if endpoint := os.Getenv("LLMCOMPARE_SOURCE_ENDPOINT"); endpoint != "" {
		cfg.Source.Endpoint = endpoint
	}
	if path := os.Getenv("LLMCOMPARE_SOURCE_PATH"); path != "" {
		cfg.Source.Path = path
	}
	if dsn := os.Getenv("LLMCOMPARE_SOURCE_DSN"); dsn != "" {
		cfg.Source.DSN = dsn
	}

	if project := os.Getenv("LLMCOMPARE_PROJECT"); project != "" {
		cfg.Analysis.Project = project
	}
	if fallback := os.Getenv("LLMCOMPARE_FALLBACK_PROJECT"); fallback != "" {
		cfg.Analysis.FallbackProject = fallback
	}
	if minutesBack := os.Getenv("LLMCOMPARE_MINUTES_BACK"); minutesBack != "" {
		v, err := strconv.Atoi(strings.TrimSpace(minutesBack))
		if err != nil {
			return fmt.Errorf("invalid LLMCOMPARE_MINUTES_BACK: %w", err)
		}
		cfg.Analysis.MinutesBack = v
	}

	if policy := os.Getenv("LLMCOMPARE_CRITIQUE_POLICY"); policy != "" {
		cfg.Critique.Policy = strings.ToLower(strings.TrimSpace(policy))
	}
	if model := os.Getenv("LLMCOMPARE_CRITIQUE_MODEL"); model != "" {
		cfg.Critique.Model = strings.TrimSpace(model)
	}
	if outputDir := os.Getenv("LLMCOMPARE_OUTPUT_DIR"); outputDir != "" {
		cfg.Export.OutputDir = outputDir
	}

	otelConfigured := false
	otelSDKDisabledSet := false
	if sdkDisabled := strings.TrimSpace(os.Getenv("OTEL_SDK_DISABLED")); sdkDisabled != "" {
		v, err := strconv.ParseBool(sdkDisabled)
		if err != nil {
			return fmt.Errorf("invalid OTEL_SDK_DISABLED: %w", err)
		}
		cfg.Observability.OTel.Enabled = !v
		otelSDKDisabledSet = true
		otelConfigured = true
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); endpoint != "" {
		cfg.Observability.OTel.Endpoint = endpoint
		otelConfigured = true
	}
	if insecure := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); insecure != "" {
		v, err := strconv.ParseBool(insecure)
		if err != nil {
			return fmt.Errorf("invalid OTEL_EXPORTER_OTLP_INSECURE: %w", err)
		}
		cfg.Observability.OTel.Insecure = v
		otelConfigured = true
	}
	if serviceName := strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")); serviceName != "" {
		cfg.Observability.OTel.ServiceName = serviceName
		otelConfigured = true
	}
	if tracesExporter := strings.TrimSpace(os.Getenv("OTEL_TRACES_EXPORTER")); tracesExporter != "" {
		enabled, err := otelExporterEnabled(tracesExporter)
		if err != nil {
			return fmt.Errorf("invalid OTEL_TRACES_EXPORTER: %w", err)
		}
		cfg.Observability.OTel.TracesEnabled = enabled
		otelConfigured = true
	}
	if metricsExporter := strings.TrimSpace(os.Getenv("OTEL_METRICS_EXPORTER")); metricsExporter != "" {
		enabled, err := otelExporterEnabled(metricsExporter)
		if err != nil {
			return fmt.Errorf("invalid OTEL_METRICS_EXPORTER: %w", err)
		}
		cfg.Observability.OTel.MetricsEnabled = enabled
		otelConfigured = true
	}
	if samplingRatio := strings.TrimSpace(os.Getenv("OTEL_TRACES_SAMPLER_ARG")); samplingRatio != "" {
		v, err := strconv.ParseFloat(samplingRatio, 64)
		if err != nil {
			return fmt.Errorf("invalid OTEL_TRACES_SAMPLER_ARG: %w", err)
		}
		cfg.Observability.OTel.SamplingRatio = v
		otelConfigured = true
	}
	if exportTimeout := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TIMEOUT")); exportTimeout != "" {
		v, err := strconv.Atoi(exportTimeout)
		if err != nil {
			return fmt.Errorf("invalid OTEL_EXPORTER_OTLP_TIMEOUT: %w", err)
		}
		cfg.Observability.OTel.ExportTimeoutMS = v
		otelConfigured = true
	}
	if metricExportInterval := strings.TrimSpace(os.Getenv("OTEL_METRIC_EXPORT_INTERVAL")); metricExportInterval != "" {
		v, err := strconv.Atoi(metricExportInterval)
		if err != nil {
			return fmt.Errorf("invalid OTEL_METRIC_EXPORT_INTERVAL: %w", err)
		}
		cfg.Observability.OTel.MetricExportIntervalMS = v
		otelConfigured = true
	}
	if otelConfigured && !otelSDKDisabledSet {
		cfg.Observability.OTel.Enabled = true
	}

	return nil
}

func otelExporterEnabled(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "otlp":
		return true, nil
	case "none":
		return false, nil
	default:
		return false, fmt.Errorf("must be one of otlp, none (got %q)", value)
	}
}
