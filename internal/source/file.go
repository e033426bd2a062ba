package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ongoingai/llmcompare/internal/spans"
)

// Keys checked, in order, for the project a file record belongs to.
var projectKeys = []string{"project_name", "project", "attributes.openinference.project.name"}

// FileSource reads spans exported to a file: a JSON array of span objects,
// a {"data": [...]} envelope as returned by the Phoenix API, or JSON Lines.
type FileSource struct {
	path string
}

func NewFileSource(path string) (*FileSource, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("span file path cannot be empty")
	}
	return &FileSource{path: path}, nil
}

func (s *FileSource) Name() string {
	return "file " + s.path
}

func (s *FileSource) Check(_ context.Context) error {
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("stat span file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("span file %q is a directory", s.path)
	}
	return nil
}

// Fetch returns the records for project. Records that name no project are
// returned for any project; when the file names projects and none match,
// ErrProjectNotFound is returned.
func (s *FileSource) Fetch(ctx context.Context, project string) ([]spans.RawSpan, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read span file: %w", err)
	}
	records, err := decodeSpanRecords(data)
	if err != nil {
		return nil, fmt.Errorf("decode span file %q: %w", s.path, err)
	}

	project = strings.TrimSpace(project)
	out := make([]spans.RawSpan, 0, len(records))
	namedProjects := 0
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw := spans.Flatten("", record, nil)
		name, ok := recordProject(raw)
		if ok {
			namedProjects++
			if name != project {
				continue
			}
		}
		out = append(out, raw)
	}
	if len(out) == 0 && namedProjects > 0 {
		return nil, ErrProjectNotFound
	}
	return out, nil
}

func (s *FileSource) Close() error {
	return nil
}

func recordProject(raw spans.RawSpan) (string, bool) {
	for _, key := range projectKeys {
		if name, ok := raw.String(key).Get(); ok {
			return name, true
		}
	}
	return "", false
}

func decodeSpanRecords(data []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var records []map[string]any
		if err := decodeJSON(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	case '{':
		var envelope struct {
			Data []map[string]any `json:"data"`
		}
		if err := decodeJSON(trimmed, &envelope); err == nil && envelope.Data != nil {
			return envelope.Data, nil
		}
		return decodeJSONLines(trimmed)
	default:
		return nil, fmt.Errorf("unrecognized span file format")
	}
}

func decodeJSON(data []byte, into any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(into); err != nil {
		return err
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("unexpected trailing data")
	}
	return nil
}

func decodeJSONLines(data []byte) ([]map[string]any, error) {
	var records []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var record map[string]any
		if err := decodeJSON(text, &record); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
