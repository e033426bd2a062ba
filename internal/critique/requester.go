package critique

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ongoingai/llmcompare/internal/observability"
	"github.com/ongoingai/llmcompare/internal/spans"
)

const (
	DefaultModel        = "gpt-4o-mini"
	DefaultMaxTokens    = 1000
	DefaultTemperature  = 0.3
	DefaultCostPerToken = "0.000002"
	DefaultTimeout      = 60 * time.Second
)

// Reasons reported on unavailable results.
const (
	ReasonDisabled = "disabled"
	ReasonFailed   = "request_failed"
	ReasonEmpty    = "empty_response"
	ReasonTimeout  = "timeout"
	ReasonPrompt   = "prompt_build_failed"
)

// Options configure a Requester. A nil Completer disables critique. A nil
// CostPerToken means DefaultCostPerToken; an explicit zero reports no cost.
type Options struct {
	Completer     Completer
	Model         string
	MaxTokens     int
	Temperature   float64
	CostPerToken  *decimal.Decimal
	Timeout       time.Duration
	PreviewLength int
	Logger        *slog.Logger
	Observability *observability.Runtime
}

// Result is the critique outcome for one comparison group.
type Result struct {
	GroupID    int
	Available  bool
	Reason     string
	Model      string
	Text       string
	TokensUsed int
	CostUSD    decimal.Decimal
	Variants   []Variant
}

type Requester struct {
	completer     Completer
	model         string
	maxTokens     int
	temperature   float64
	costPerToken  decimal.Decimal
	timeout       time.Duration
	previewLength int
	logger        *slog.Logger
	obs           *observability.Runtime
}

func NewRequester(options Options) *Requester {
	r := &Requester{
		completer:     options.Completer,
		model:         options.Model,
		maxTokens:     options.MaxTokens,
		temperature:   options.Temperature,
		timeout:       options.Timeout,
		previewLength: options.PreviewLength,
		logger:        options.Logger,
		obs:           options.Observability,
	}
	if r.model == "" {
		r.model = DefaultModel
	}
	if r.maxTokens <= 0 {
		r.maxTokens = DefaultMaxTokens
	}
	if options.CostPerToken != nil {
		r.costPerToken = *options.CostPerToken
	} else {
		r.costPerToken = decimal.RequireFromString(DefaultCostPerToken)
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.previewLength <= 0 {
		r.previewLength = DefaultPreviewLength
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Enabled reports whether a completer is configured.
func (r *Requester) Enabled() bool {
	return r != nil && r.completer != nil
}

func (r *Requester) Model() string {
	if r == nil {
		return DefaultModel
	}
	return r.model
}

// Critique requests a critique for one group. It never returns an error:
// failures are logged and reported as an unavailable result so the remaining
// groups can still be processed.
func (r *Requester) Critique(ctx context.Context, groupID int, calls []spans.CallDetail) Result {
	result := Result{GroupID: groupID, Model: r.Model(), CostUSD: decimal.Zero}
	if !r.Enabled() {
		result.Reason = ReasonDisabled
		return result
	}
	result.Variants = Variants(calls, r.previewLength)

	prompt, err := BuildPrompt(calls, r.previewLength)
	if err != nil {
		r.logger.Warn("critique prompt build failed", "group", groupID, "error", err)
		result.Reason = ReasonPrompt
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	completion, err := r.completer.Complete(callCtx, CompletionRequest{
		Model:        r.model,
		SystemPrompt: SystemPrompt,
		UserPrompt:   prompt,
		MaxTokens:    r.maxTokens,
		Temperature:  float32(r.temperature),
	})
	if err != nil {
		result.Reason = failureReason(callCtx, err)
		r.obs.RecordCritiqueFailure(ctx, result.Reason)
		r.logger.Warn(
			"critique request failed",
			"group", groupID,
			"model", r.model,
			"reason", result.Reason,
			"error", observability.ScrubCredentials(err.Error()),
		)
		return result
	}

	result.Available = true
	result.Text = completion.Text
	result.TokensUsed = completion.TotalTokens
	result.CostUSD = EstimateCost(completion.TotalTokens, r.costPerToken)
	r.obs.RecordCritiqueTokens(ctx, r.model, int64(completion.TotalTokens))
	r.logger.Debug("critique completed", "group", groupID, "model", r.model, "tokens", completion.TotalTokens)
	return result
}

// EstimateCost multiplies the tokens a critique consumed by the per-token rate.
func EstimateCost(tokens int, rate decimal.Decimal) decimal.Decimal {
	if tokens <= 0 {
		return decimal.Zero
	}
	return rate.Mul(decimal.NewFromInt(int64(tokens)))
}

func failureReason(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, ErrEmptyResponse):
		return ReasonEmpty
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonFailed
	}
}
