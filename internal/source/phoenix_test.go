package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ongoingai/llmcompare/internal/config"
	"github.com/ongoingai/llmcompare/internal/spans"
)

const phoenixPageOne = `{
  "data": [
    {
      "name": "ChatCompletion",
      "span_kind": "LLM",
      "context": {"trace_id": "trace-1", "span_id": "span-1"},
      "start_time": "2025-08-06T18:41:59.829542+00:00",
      "end_time": "2025-08-06T18:42:02.607948+00:00",
      "status_code": "OK",
      "attributes": {
        "llm": {"model_name": "gpt-4o", "token_count": {"prompt": 150, "completion": 50, "total": 200}},
        "input": {"value": "hello"}
      }
    }
  ],
  "next_cursor": "page-2"
}`

const phoenixPageTwo = `{
  "data": [
    {
      "name": "ChatCompletion",
      "span_kind": "LLM",
      "context": {"trace_id": "trace-2", "span_id": "span-2"},
      "start_time": "2025-08-06T18:41:59.900000+00:00",
      "attributes": {"llm.model_name": "gpt-4o-mini"}
    }
  ],
  "next_cursor": null
}`

type phoenixFake struct {
	mu       sync.Mutex
	requests []*http.Request
}

func (f *phoenixFake) handler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Clone(context.Background()))
		f.mu.Unlock()

		if !strings.HasPrefix(r.Header.Get("User-Agent"), "llmcompare/") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("Authorization") != "Bearer phx-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"invalid api key"}`))
			return
		}
		switch r.URL.Path {
		case "/v1/projects":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":[{"id":"UHJvamVjdDox","name":"playground"}],"next_cursor":null}`))
		case "/v1/projects/playground/spans":
			w.Header().Set("Content-Type", "application/json")
			if r.URL.Query().Get("cursor") == "page-2" {
				_, _ = w.Write([]byte(phoenixPageTwo))
				return
			}
			_, _ = w.Write([]byte(phoenixPageOne))
		default:
			http.NotFound(w, r)
		}
	})
}

func newPhoenixTestSource(t *testing.T, apiKey string, maxPages int) (*PhoenixSource, *phoenixFake) {
	t.Helper()

	fake := &phoenixFake{}
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	source, err := NewPhoenixSource(PhoenixOptions{
		Endpoint:   server.URL + "/",
		APIKey:     apiKey,
		PageSize:   1,
		MaxPages:   maxPages,
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("NewPhoenixSource() error: %v", err)
	}
	return source, fake
}

func TestPhoenixSourceFetchFollowsCursor(t *testing.T) {
	t.Parallel()

	source, fake := newPhoenixTestSource(t, "phx-key", 10)

	raws, err := source.Fetch(context.Background(), "playground")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(raws) != 2 {
		t.Fatalf("spans=%d, want 2", len(raws))
	}

	first := spans.Normalize(raws[0])
	if got := first.SpanID.Or(""); got != "span-1" {
		t.Fatalf("span_id=%q, want span-1", got)
	}
	if got, ok := first.TotalTokens.Get(); !ok || got != 200 {
		t.Fatalf("total_tokens=%d (present=%v), want 200", got, ok)
	}
	if got, ok := first.DurationMS.Get(); !ok || got != 2778.41 {
		t.Fatalf("duration_ms=%v (present=%v), want 2778.41", got, ok)
	}
	if got := first.InputData.Or(""); got != "hello" {
		t.Fatalf("input=%q, want hello", got)
	}
	if got := spans.Normalize(raws[1]).Model.Or(""); got != "gpt-4o-mini" {
		t.Fatalf("second model=%q, want gpt-4o-mini", got)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.requests) != 2 {
		t.Fatalf("requests=%d, want 2", len(fake.requests))
	}
	if got := fake.requests[0].URL.Query().Get("limit"); got != "1" {
		t.Fatalf("limit=%q, want 1", got)
	}
	if got := fake.requests[0].URL.Query().Get("cursor"); got != "" {
		t.Fatalf("first cursor=%q, want empty", got)
	}
	if got := fake.requests[1].URL.Query().Get("cursor"); got != "page-2" {
		t.Fatalf("second cursor=%q, want page-2", got)
	}
}

func TestPhoenixSourceFetchStopsAtMaxPages(t *testing.T) {
	t.Parallel()

	source, fake := newPhoenixTestSource(t, "phx-key", 1)

	raws, err := source.Fetch(context.Background(), "playground")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(raws) != 1 {
		t.Fatalf("spans=%d, want 1", len(raws))
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.requests) != 1 {
		t.Fatalf("requests=%d, want 1", len(fake.requests))
	}
}

func TestPhoenixSourceUnknownProject(t *testing.T) {
	t.Parallel()

	source, _ := newPhoenixTestSource(t, "phx-key", 10)

	_, err := source.Fetch(context.Background(), "missing")
	if !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("Fetch() error=%v, want ErrProjectNotFound", err)
	}
	if got := ClassifyError(err); got != ErrorClassNotFound {
		t.Fatalf("class=%q, want %q", got, ErrorClassNotFound)
	}
}

func TestPhoenixSourceRejectedKey(t *testing.T) {
	t.Parallel()

	source, _ := newPhoenixTestSource(t, "wrong-key", 10)

	err := source.Check(context.Background())
	if err == nil {
		t.Fatal("Check() error=nil, want auth failure")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Check() error=%v, want 401 status error", err)
	}
	if !strings.Contains(statusErr.Body, "invalid api key") {
		t.Fatalf("status body=%q, want server detail", statusErr.Body)
	}
	if got := ClassifyError(err); got != ErrorClassAuth {
		t.Fatalf("class=%q, want %q", got, ErrorClassAuth)
	}
}

func TestPhoenixSourceCheck(t *testing.T) {
	t.Parallel()

	source, fake := newPhoenixTestSource(t, "phx-key", 10)
	if err := source.Check(context.Background()); err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if got := fake.requests[0].URL.Path; got != "/v1/projects" {
		t.Fatalf("check path=%q, want /v1/projects", got)
	}
}

func TestNewPhoenixSourceValidatesEndpoint(t *testing.T) {
	t.Parallel()

	for _, endpoint := range []string{"", "   ", "localhost:6006", "/relative"} {
		if _, err := NewPhoenixSource(PhoenixOptions{Endpoint: endpoint}); err == nil {
			t.Fatalf("NewPhoenixSource(%q) error=nil, want error", endpoint)
		}
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Parallel()

	source, err := Open(config.SourceConfig{Driver: config.DriverPhoenix, Endpoint: "http://localhost:6006", TimeoutMS: 1000}, nil)
	if err != nil {
		t.Fatalf("Open(phoenix) error: %v", err)
	}
	if _, ok := source.(*PhoenixSource); !ok {
		t.Fatalf("Open(phoenix)=%T, want *PhoenixSource", source)
	}

	source, err = Open(config.SourceConfig{Driver: config.DriverFile, Path: "spans.json"}, nil)
	if err != nil {
		t.Fatalf("Open(file) error: %v", err)
	}
	if _, ok := source.(*FileSource); !ok {
		t.Fatalf("Open(file)=%T, want *FileSource", source)
	}

	if _, err := Open(config.SourceConfig{Driver: "mongo"}, nil); err == nil {
		t.Fatal("Open(mongo) error=nil, want unsupported driver")
	}
}

func TestRowLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pageSize, maxPages, want int
	}{
		{pageSize: 1000, maxPages: 50, want: 50000},
		{pageSize: 0, maxPages: 50, want: 0},
		{pageSize: 100, maxPages: -1, want: 0},
	}
	for _, tt := range tests {
		got := rowLimit(config.SourceConfig{PageSize: tt.pageSize, MaxPages: tt.maxPages})
		if got != tt.want {
			t.Fatalf("rowLimit(%d,%d)=%d, want %d", tt.pageSize, tt.maxPages, got, tt.want)
		}
	}
}
