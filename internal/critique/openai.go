package critique

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse is returned when the completion carries no text.
var ErrEmptyResponse = errors.New("critique: empty completion response")

// CompletionRequest is one critique request.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float32
}

// Completion is the critique text plus the tokens the call consumed.
type Completion struct {
	Text        string
	TotalTokens int
}

// Completer executes a chat completion.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// OpenAICompleter talks to the OpenAI chat completions API or any
// compatible endpoint.
type OpenAICompleter struct {
	client *openai.Client
}

type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewOpenAICompleter(options OpenAIOptions) (*OpenAICompleter, error) {
	if strings.TrimSpace(options.APIKey) == "" {
		return nil, errors.New("critique: api key is required")
	}
	cfg := openai.DefaultConfig(options.APIKey)
	if baseURL := strings.TrimSpace(options.BaseURL); baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if options.HTTPClient != nil {
		cfg.HTTPClient = options.HTTPClient
	}
	return &OpenAICompleter{client: openai.NewClientWithConfig(cfg)}, nil
}

func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	// A zero temperature is dropped by omitempty; the smallest float32 keeps
	// it on the wire.
	temperature := req.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return Completion{}, ErrEmptyResponse
	}
	return Completion{Text: text, TotalTokens: resp.Usage.TotalTokens}, nil
}
