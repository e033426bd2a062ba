package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunVersion(t *testing.T) {
	t.Parallel()

	for _, arg := range []string{"version", "--version", "-v"} {
		var stdout, stderr bytes.Buffer
		if code := run([]string{arg}, nil, &stdout, &stderr); code != 0 {
			t.Fatalf("run(%q) code=%d, want 0", arg, code)
		}
		if !strings.HasPrefix(stdout.String(), "llmcompare ") {
			t.Fatalf("run(%q) stdout=%q, want version line", arg, stdout.String())
		}
	}
}

func TestRunHelpPrintsUsage(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if code := run([]string{"help"}, nil, &stdout, &stderr); code != 0 {
		t.Fatalf("run(help) code=%d, want 0", code)
	}
	if !strings.Contains(stdout.String(), "llmcompare doctor") {
		t.Fatalf("stdout=%q, want usage", stdout.String())
	}
}

func TestRunUnknownCommandExitsTwo(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if code := run([]string{"serve"}, nil, &stdout, &stderr); code != 2 {
		t.Fatalf("run(serve) code=%d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "Usage:") {
		t.Fatalf("stderr=%q, want usage", stderr.String())
	}
}

func TestRunConfigRequiresSubcommand(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if code := run([]string{"config"}, nil, &stdout, &stderr); code != 2 {
		t.Fatalf("run(config) code=%d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "config validate") {
		t.Fatalf("stderr=%q, want config usage", stderr.String())
	}
}

func TestRunConfigValidate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configPath := writeTestConfig(t, dir, testConfigOptions{
		spanPath:  filepath.Join(dir, "spans.json"),
		outputDir: filepath.Join(dir, "exports"),
	})

	var stdout, stderr bytes.Buffer
	code := run([]string{"config", "validate", "--config", configPath}, nil, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("config validate code=%d, want 0 (stderr=%q)", code, stderr.String())
	}
	body := stdout.String()
	if !strings.Contains(body, "config is valid") || !strings.Contains(body, "source: file ") {
		t.Fatalf("stdout=%q, want valid summary", body)
	}
	if !strings.Contains(body, "project: playground (fallback default)") {
		t.Fatalf("stdout=%q, want project line", body)
	}
}

func TestRunConfigValidateReportsStage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "invalid value",
			body: "source:\n  driver: file\n  path: spans.json\nanalysis:\n  minutes_back: 0\n",
			want: "config is invalid: analysis.minutes_back must be > 0",
		},
		{
			name: "unknown field",
			body: "sources:\n  driver: file\n",
			want: "failed to load config:",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			configPath := filepath.Join(dir, "llmcompare.yaml")
			writeFile(t, configPath, tt.body)

			var stdout, stderr bytes.Buffer
			code := run([]string{"config", "validate", "--config", configPath}, nil, &stdout, &stderr)
			if code != 1 {
				t.Fatalf("code=%d, want 1", code)
			}
			if !strings.Contains(stderr.String(), tt.want) {
				t.Fatalf("stderr=%q, want %q", stderr.String(), tt.want)
			}
		})
	}
}

func TestNormalizeTextJSONFormat(t *testing.T) {
	t.Parallel()

	if got, err := normalizeTextJSONFormat("doctor", " JSON ", "text"); err != nil || got != "json" {
		t.Fatalf("normalize(JSON)=%q, %v", got, err)
	}
	if got, err := normalizeTextJSONFormat("doctor", "", "text"); err != nil || got != "text" {
		t.Fatalf("normalize(empty)=%q, %v", got, err)
	}
	if _, err := normalizeTextJSONFormat("doctor", "yaml", "text"); err == nil {
		t.Fatal("normalize(yaml) error=nil, want error")
	}
}
