package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type spanFixture struct {
	id      string
	project string
	kind    string
	model   string
	start   time.Time
	millis  int
	tokens  int
}

func (f spanFixture) record() map[string]any {
	record := map[string]any{
		"context.span_id":                   f.id,
		"context.trace_id":                  "trace-" + f.id,
		"name":                              "ChatCompletion",
		"span_kind":                         f.kind,
		"start_time":                        f.start.Format(time.RFC3339Nano),
		"end_time":                          f.start.Add(time.Duration(f.millis) * time.Millisecond).Format(time.RFC3339Nano),
		"status_code":                       "OK",
		"attributes.llm.model_name":         f.model,
		"attributes.llm.token_count.prompt": f.tokens / 2,
		"attributes.llm.token_count.total":  f.tokens,
		"input":                             "Summarize the release notes",
		"output":                            "Here is a summary from " + f.model,
	}
	if f.project != "" {
		record["project_name"] = f.project
	}
	return record
}

// comparisonFixtures returns three LLM calls sharing one start second, a
// lone LLM call, and a non-LLM span, all in the playground project.
func comparisonFixtures(now time.Time) []spanFixture {
	base := now.UTC().Add(-2 * time.Minute).Truncate(time.Second)
	return []spanFixture{
		{id: "a", project: "playground", kind: "LLM", model: "gpt-4o", start: base.Add(100 * time.Millisecond), millis: 900, tokens: 300},
		{id: "b", project: "playground", kind: "LLM", model: "gpt-4o-mini", start: base.Add(200 * time.Millisecond), millis: 400, tokens: 180},
		{id: "c", project: "playground", kind: "LLM", model: "gpt-3.5-turbo", start: base.Add(300 * time.Millisecond), millis: 350, tokens: 210},
		{id: "d", project: "playground", kind: "LLM", model: "gpt-4o", start: base.Add(-30 * time.Second), millis: 800, tokens: 90},
		{id: "e", project: "playground", kind: "CHAIN", model: "", start: base, millis: 1500, tokens: 0},
	}
}

func writeSpanFile(t *testing.T, dir string, fixtures []spanFixture) string {
	t.Helper()

	records := make([]map[string]any, 0, len(fixtures))
	for _, fixture := range fixtures {
		records = append(records, fixture.record())
	}
	body, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("marshal span fixtures: %v", err)
	}
	path := filepath.Join(dir, "spans.json")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write span file: %v", err)
	}
	return path
}

type testConfigOptions struct {
	spanPath  string
	outputDir string
	formats   []string
	extra     string
}

func writeTestConfig(t *testing.T, dir string, opts testConfigOptions) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("source:\n  driver: file\n  path: " + opts.spanPath + "\n")
	b.WriteString("analysis:\n  project: playground\n  fallback_project: default\n  minutes_back: 15\n")
	b.WriteString("export:\n  output_dir: " + opts.outputDir + "\n")
	if len(opts.formats) > 0 {
		b.WriteString("  formats: [" + strings.Join(opts.formats, ", ") + "]\n")
	}
	b.WriteString(opts.extra)

	path := filepath.Join(dir, "llmcompare.yaml")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir %q: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()

	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}
