package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/ongoingai/llmcompare/internal/config"
)

const (
	configStageLoad     = "load"
	configStageValidate = "validate"
)

func newFlagSet(name string, errOut io.Writer) *flag.FlagSet {
	flagSet := flag.NewFlagSet(name, flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	return flagSet
}

// loadAndValidateConfig loads the env file and config and reports which
// stage failed.
func loadAndValidateConfig(envFile, configPath string) (config.Config, string, error) {
	cfg, err := loadConfig(envFile, configPath)
	if err != nil {
		return config.Config{}, configStageLoad, err
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, configStageValidate, err
	}
	return cfg, "", nil
}

func loadConfig(envFile, configPath string) (config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return config.Config{}, err
	}
	return config.Load(configPath)
}

func writeConfigError(errOut io.Writer, stage string, err error) {
	if stage == configStageLoad {
		fmt.Fprintf(errOut, "failed to load config: %v\n", err)
		return
	}
	fmt.Fprintf(errOut, "config is invalid: %v\n", err)
}

// normalizeTextJSONFormat validates command output format flags with shared semantics.
func normalizeTextJSONFormat(command, rawValue, defaultValue string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawValue))
	if normalized == "" {
		normalized = strings.TrimSpace(defaultValue)
	}
	switch normalized {
	case "text", "json":
		return normalized, nil
	default:
		return "", fmt.Errorf("invalid %s format %q: expected text or json", strings.TrimSpace(command), rawValue)
	}
}

func describeSource(cfg config.SourceConfig) string {
	switch cfg.Driver {
	case config.DriverPhoenix:
		return "phoenix " + cfg.Endpoint
	case config.DriverSQLite, config.DriverFile:
		return cfg.Driver + " " + cfg.Path
	default:
		return cfg.Driver
	}
}

func nonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
