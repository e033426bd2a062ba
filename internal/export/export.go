package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ongoingai/llmcompare/internal/analysis"
	"github.com/ongoingai/llmcompare/internal/config"
	"github.com/ongoingai/llmcompare/internal/critique"
	"github.com/ongoingai/llmcompare/internal/spans"
)

const (
	fileStampLayout = "20060102_150405"
	keyLayout       = "2006-01-02 15:04:05"
)

// Document is everything one run produces for export.
type Document struct {
	RunID       string
	Project     string
	GeneratedAt time.Time
	Groups      []analysis.ComparisonGroup
	Critiques   map[int]critique.Result
}

// Result is the outcome of writing one format.
type Result struct {
	Format string
	Path   string
	Err    error
}

// Exporter writes artifacts into Dir. Now stamps file names when the
// document carries no generation time.
type Exporter struct {
	Dir string
	Now func() time.Time
}

func New(dir string) *Exporter {
	return &Exporter{Dir: dir, Now: time.Now}
}

// ExportAll writes each requested format. A failing format is reported in
// its Result and does not stop the others.
func (e *Exporter) ExportAll(formats []string, doc Document) []Result {
	seen := make(map[string]struct{}, len(formats))
	results := make([]Result, 0, len(formats))
	for _, format := range formats {
		format = strings.ToLower(strings.TrimSpace(format))
		if format == "" {
			continue
		}
		if _, dup := seen[format]; dup {
			continue
		}
		seen[format] = struct{}{}

		path, err := e.Export(format, doc)
		results = append(results, Result{Format: format, Path: path, Err: err})
	}
	return results
}

// Export writes one format and returns the file path.
func (e *Exporter) Export(format string, doc Document) (string, error) {
	var (
		prefix, ext string
		write       func(path string, doc Document) error
	)
	switch format {
	case config.FormatCSV:
		prefix, ext, write = "grouped_calls", ".csv", writeCSV
	case config.FormatExcel:
		prefix, ext, write = "comparison_analysis", ".xlsx", writeExcel
	case config.FormatJSON:
		prefix, ext, write = "efficiency_report", ".json", writeJSON
	case config.FormatMarkdown:
		prefix, ext, write = "analysis_report", ".md", writeMarkdown
	default:
		return "", fmt.Errorf("unsupported export format %q", format)
	}

	if err := e.ensureDir(); err != nil {
		return "", err
	}
	path := filepath.Join(e.dir(), prefix+"_"+e.stamp(doc).Format(fileStampLayout)+ext)
	if err := write(path, doc); err != nil {
		return "", fmt.Errorf("export %s: %w", format, err)
	}
	return path, nil
}

func (e *Exporter) dir() string {
	if strings.TrimSpace(e.Dir) == "" {
		return "exports"
	}
	return e.Dir
}

func (e *Exporter) ensureDir() error {
	if err := os.MkdirAll(e.dir(), 0o755); err != nil {
		return fmt.Errorf("create export directory %q: %w", e.dir(), err)
	}
	return nil
}

func (e *Exporter) stamp(doc Document) time.Time {
	if !doc.GeneratedAt.IsZero() {
		return doc.GeneratedAt
	}
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// callRow is the flat per-call view shared by the tabular encoders.
type callRow struct {
	Group   int
	Call    int
	Start   string
	Detail  spans.CallDetail
	Variant string
}

func callRows(groups []analysis.ComparisonGroup) []callRow {
	var rows []callRow
	for _, group := range groups {
		for i, entry := range group.Calls {
			rows = append(rows, callRow{
				Group:   group.ID,
				Call:    i + 1,
				Start:   formatKey(group.Key),
				Detail:  entry.Call,
				Variant: critique.VariantLabel(i),
			})
		}
	}
	return rows
}

func formatKey(key time.Time) string {
	return key.UTC().Format(keyLayout)
}

func modelList(summary analysis.GroupSummary) string {
	if len(summary.Models) == 0 {
		return spans.Missing
	}
	return strings.Join(summary.Models, ", ")
}

func costText(summary analysis.GroupSummary) string {
	if !summary.CostReported {
		return spans.Missing
	}
	return summary.TotalCostUSD.String()
}
