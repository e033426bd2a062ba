package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ongoingai/llmcompare/internal/spans"
	"github.com/ongoingai/llmcompare/internal/version"
)

const (
	defaultPageSize  = 1000
	defaultMaxPages  = 50
	maxErrorBodySize = 512
)

type PhoenixOptions struct {
	Endpoint   string
	APIKey     string
	PageSize   int
	MaxPages   int
	HTTPClient *http.Client
}

// PhoenixSource reads spans over the Phoenix REST API.
type PhoenixSource struct {
	base     *url.URL
	apiKey   string
	pageSize int
	maxPages int
	client   *http.Client
}

func NewPhoenixSource(options PhoenixOptions) (*PhoenixSource, error) {
	endpoint := strings.TrimSpace(options.Endpoint)
	if endpoint == "" {
		return nil, errors.New("phoenix endpoint cannot be empty")
	}
	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse phoenix endpoint: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("phoenix endpoint must include scheme and host (got %q)", options.Endpoint)
	}

	source := &PhoenixSource{
		base:     base,
		apiKey:   strings.TrimSpace(options.APIKey),
		pageSize: options.PageSize,
		maxPages: options.MaxPages,
		client:   options.HTTPClient,
	}
	if source.pageSize <= 0 {
		source.pageSize = defaultPageSize
	}
	if source.maxPages <= 0 {
		source.maxPages = defaultMaxPages
	}
	if source.client == nil {
		source.client = &http.Client{Timeout: 30 * time.Second}
	}
	return source, nil
}

func (s *PhoenixSource) Name() string {
	return "phoenix " + s.base.String()
}

// Check lists one project, which proves the server is reachable and the API
// key (if any) is accepted.
func (s *PhoenixSource) Check(ctx context.Context) error {
	resp, err := s.get(ctx, s.endpoint("v1", "projects"), url.Values{"limit": {"1"}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type phoenixSpansPage struct {
	Data       []map[string]any `json:"data"`
	NextCursor *string          `json:"next_cursor"`
}

// Fetch pages through the project's spans until the cursor runs out or the
// page bound is reached.
func (s *PhoenixSource) Fetch(ctx context.Context, project string) ([]spans.RawSpan, error) {
	project = strings.TrimSpace(project)
	if project == "" {
		return nil, errors.New("project name cannot be empty")
	}

	target := s.endpoint("v1", "projects", project, "spans")
	var out []spans.RawSpan
	cursor := ""
	for page := 0; page < s.maxPages; page++ {
		query := url.Values{"limit": {strconv.Itoa(s.pageSize)}}
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		batch, next, err := s.fetchPage(ctx, target, query)
		if err != nil {
			return nil, err
		}
		for _, record := range batch {
			out = append(out, spans.Flatten("", record, nil))
		}
		if next == "" || len(batch) == 0 {
			break
		}
		cursor = next
	}
	return out, nil
}

func (s *PhoenixSource) fetchPage(ctx context.Context, target string, query url.Values) ([]map[string]any, string, error) {
	resp, err := s.get(ctx, target, query)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var page phoenixSpansPage
	if err := decoder.Decode(&page); err != nil {
		return nil, "", fmt.Errorf("decode phoenix spans: %w", err)
	}
	next := ""
	if page.NextCursor != nil {
		next = strings.TrimSpace(*page.NextCursor)
	}
	return page.Data, next, nil
}

func (s *PhoenixSource) get(ctx context.Context, target string, query url.Values) (*http.Response, error) {
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build phoenix request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("phoenix request: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return nil, ErrProjectNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("phoenix request: %w", &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		})
	}
	return resp, nil
}

func (s *PhoenixSource) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, segment := range segments {
		escaped[i] = url.PathEscape(segment)
	}
	return s.base.String() + "/" + strings.Join(escaped, "/")
}

func (s *PhoenixSource) Close() error {
	return nil
}
