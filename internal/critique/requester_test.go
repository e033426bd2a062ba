package critique

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type stubCompleter struct {
	mu       sync.Mutex
	requests []CompletionRequest
	complete func(ctx context.Context, req CompletionRequest) (Completion, error)
}

func (s *stubCompleter) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.complete(ctx, req)
}

func TestCritiqueDisabledWithoutCompleter(t *testing.T) {
	t.Parallel()

	requester := NewRequester(Options{})
	if requester.Enabled() {
		t.Fatal("Enabled()=true without completer")
	}
	result := requester.Critique(context.Background(), 1, groupCalls())
	if result.Available || result.Reason != ReasonDisabled {
		t.Fatalf("result=%+v, want unavailable/disabled", result)
	}
	if result.Model != DefaultModel {
		t.Fatalf("model=%q, want %q", result.Model, DefaultModel)
	}
}

func TestCritiqueSuccess(t *testing.T) {
	t.Parallel()

	stub := &stubCompleter{complete: func(_ context.Context, _ CompletionRequest) (Completion, error) {
		return Completion{Text: "## Comparison\n- gpt-4o-mini wins", TotalTokens: 321}, nil
	}}
	requester := NewRequester(Options{Completer: stub, Model: "gpt-4.1-mini", MaxTokens: 500, Temperature: 0.2})

	result := requester.Critique(context.Background(), 2, groupCalls())
	if !result.Available {
		t.Fatalf("result unavailable: %+v", result)
	}
	if result.GroupID != 2 || result.TokensUsed != 321 || result.Model != "gpt-4.1-mini" {
		t.Fatalf("result=%+v", result)
	}
	if got := result.CostUSD.String(); got != "0.000642" {
		t.Fatalf("cost=%s, want 0.000642", got)
	}
	if len(result.Variants) != 2 {
		t.Fatalf("variants=%d, want 2", len(result.Variants))
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.requests) != 1 {
		t.Fatalf("requests=%d, want 1", len(stub.requests))
	}
	req := stub.requests[0]
	if req.SystemPrompt != SystemPrompt || req.MaxTokens != 500 || req.Temperature != float32(0.2) {
		t.Fatalf("request=%+v", req)
	}
	if !strings.Contains(req.UserPrompt, `"variant": "Variant A"`) {
		t.Fatalf("user prompt missing variants: %q", req.UserPrompt)
	}
}

func TestCritiqueFailureIsScrubbedAndReported(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	stub := &stubCompleter{complete: func(_ context.Context, _ CompletionRequest) (Completion, error) {
		return Completion{}, fmt.Errorf("chat completion: invalid key sk-live-abcdefghijklmnopqrstuvwxyz")
	}}
	requester := NewRequester(Options{Completer: stub, Logger: logger})

	result := requester.Critique(context.Background(), 3, groupCalls())
	if result.Available || result.Reason != ReasonFailed {
		t.Fatalf("result=%+v, want request_failed", result)
	}
	if strings.Contains(logs.String(), "abcdefghijklmnopqrstuvwxyz") {
		t.Fatalf("log leaked credential: %s", logs.String())
	}
	if !strings.Contains(logs.String(), "critique request failed") {
		t.Fatalf("failure not logged: %s", logs.String())
	}
}

func TestCritiqueFailureReasons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		timeout time.Duration
		err     func(ctx context.Context) error
		want    string
	}{
		{
			name: "empty response",
			err:  func(context.Context) error { return ErrEmptyResponse },
			want: ReasonEmpty,
		},
		{
			name:    "deadline",
			timeout: 10 * time.Millisecond,
			err: func(ctx context.Context) error {
				<-ctx.Done()
				return fmt.Errorf("chat completion: %w", ctx.Err())
			},
			want: ReasonTimeout,
		},
		{
			name: "generic",
			err:  func(context.Context) error { return errors.New("boom") },
			want: ReasonFailed,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stub := &stubCompleter{complete: func(ctx context.Context, _ CompletionRequest) (Completion, error) {
				return Completion{}, tt.err(ctx)
			}}
			result := NewRequester(Options{Completer: stub, Timeout: tt.timeout}).Critique(context.Background(), 1, groupCalls())
			if result.Available || result.Reason != tt.want {
				t.Fatalf("result=%+v, want reason %q", result, tt.want)
			}
		})
	}
}

func TestEstimateCost(t *testing.T) {
	t.Parallel()

	rate := decimal.RequireFromString(DefaultCostPerToken)
	if got := EstimateCost(321, rate).String(); got != "0.000642" {
		t.Fatalf("EstimateCost(321)=%s, want 0.000642", got)
	}
	if got := EstimateCost(0, rate); !got.IsZero() {
		t.Fatalf("EstimateCost(0)=%s, want 0", got)
	}
}

func TestCritiqueThroughOpenAIClient(t *testing.T) {
	t.Parallel()

	var (
		mu         sync.Mutex
		authHeader string
		path       string
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		authHeader = r.Header.Get("Authorization")
		path = r.URL.Path
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"chatcmpl-test",
			"object":"chat.completion",
			"created":1700000000,
			"model":"gpt-4o-mini",
			"choices":[
				{
					"index":0,
					"message":{"role":"assistant","content":"  ## Recommendation\n- use gpt-4o-mini  "},
					"finish_reason":"stop"
				}
			],
			"usage":{"prompt_tokens":300,"completion_tokens":21,"total_tokens":321}
		}`))
	}))
	defer upstream.Close()

	completer, err := NewOpenAICompleter(OpenAIOptions{
		APIKey:     "sk-test-key",
		BaseURL:    upstream.URL + "/v1/",
		HTTPClient: upstream.Client(),
	})
	if err != nil {
		t.Fatalf("NewOpenAICompleter() error: %v", err)
	}

	result := NewRequester(Options{Completer: completer}).Critique(context.Background(), 1, groupCalls())
	if !result.Available {
		t.Fatalf("result unavailable: %+v", result)
	}
	if result.Text != "## Recommendation\n- use gpt-4o-mini" {
		t.Fatalf("text=%q", result.Text)
	}
	if result.TokensUsed != 321 {
		t.Fatalf("tokens=%d, want 321", result.TokensUsed)
	}

	mu.Lock()
	defer mu.Unlock()
	if authHeader != "Bearer sk-test-key" {
		t.Fatalf("authorization=%q", authHeader)
	}
	if path != "/v1/chat/completions" {
		t.Fatalf("path=%q, want /v1/chat/completions", path)
	}
}

func TestOpenAICompleterEmptyChoices(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-empty","object":"chat.completion","choices":[],"usage":{"total_tokens":0}}`))
	}))
	defer upstream.Close()

	completer, err := NewOpenAICompleter(OpenAIOptions{APIKey: "sk-test-key", BaseURL: upstream.URL, HTTPClient: upstream.Client()})
	if err != nil {
		t.Fatalf("NewOpenAICompleter() error: %v", err)
	}
	_, err = completer.Complete(context.Background(), CompletionRequest{Model: DefaultModel, UserPrompt: "hi"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("Complete() error=%v, want ErrEmptyResponse", err)
	}
}

func TestNewOpenAICompleterRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewOpenAICompleter(OpenAIOptions{APIKey: "  "}); err == nil {
		t.Fatal("NewOpenAICompleter() error=nil without key")
	}
}

func TestCritiqueExplicitZeroCostRate(t *testing.T) {
	t.Parallel()

	stub := &stubCompleter{complete: func(_ context.Context, _ CompletionRequest) (Completion, error) {
		return Completion{Text: "ok", TotalTokens: 500}, nil
	}}
	zero := decimal.Zero
	result := NewRequester(Options{Completer: stub, CostPerToken: &zero}).Critique(context.Background(), 1, groupCalls())
	if !result.Available {
		t.Fatalf("result unavailable: %+v", result)
	}
	if !result.CostUSD.IsZero() {
		t.Fatalf("cost=%s, want 0 with an explicit zero rate", result.CostUSD)
	}
}

func TestOpenAICompleterSendsZeroTemperature(t *testing.T) {
	t.Parallel()

	bodies := make(chan string, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-zero","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}],"usage":{"total_tokens":3}}`))
	}))
	defer upstream.Close()

	completer, err := NewOpenAICompleter(OpenAIOptions{APIKey: "sk-test-key", BaseURL: upstream.URL, HTTPClient: upstream.Client()})
	if err != nil {
		t.Fatalf("NewOpenAICompleter() error: %v", err)
	}
	if _, err := completer.Complete(context.Background(), CompletionRequest{Model: "m", UserPrompt: "hi", MaxTokens: 10, Temperature: 0}); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if body := <-bodies; !strings.Contains(body, `"temperature":`) {
		t.Fatalf("request body=%s, want a temperature field", body)
	}
}
