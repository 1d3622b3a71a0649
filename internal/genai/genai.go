// Package genai provides the chat-completion clients the assistance layer talks to.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

const (
	defaultMaxTokens   = 256
	defaultTemperature = 0.0
)

var (
	// ErrNoChoicesReturned is returned when the provider answers without a choice.
	ErrNoChoicesReturned = errors.New("no choices returned")
	// ErrEmptyResponse is returned when the completion text is blank.
	ErrEmptyResponse = errors.New("empty completion")
	// ErrNoAPIKey is returned by constructors when no API key is configured.
	ErrNoAPIKey = errors.New("API key not set")
)

// Request is a single-shot completion request.
type Request struct {
	System      string
	User        string
	MaxTokens   int     // 0 uses the client default
	Temperature float64 // negative uses the client default
}

// Completion is the provider's answer and what it cost in tokens.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	Model            string
}

// TotalTokens is prompt plus completion tokens.
func (c Completion) TotalTokens() int {
	return c.PromptTokens + c.CompletionTokens
}

// Completer is implemented by every provider client.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// chatCompletions adapts the SDK's completion service to chatService.
type chatCompletions struct {
	svc *openai.ChatCompletionService
}

func (c chatCompletions) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := c.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration options for the provider clients.
type Opts struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	DebugMode   bool
	StateDir    string
}

// Option defines a function that modifies Opts.
type Option func(*Opts)

// WithAPIKey overrides the provider API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) {
		o.Temperature = t
	}
}

// WithMaxTokens sets the default completion token cap.
func WithMaxTokens(n int) Option {
	return func(o *Opts) {
		o.MaxTokens = n
	}
}

// WithDebugMode writes every request and response under StateDir/debug.
func WithDebugMode(enabled bool) Option {
	return func(o *Opts) {
		o.DebugMode = enabled
	}
}

// WithStateDir sets where debug logs are written.
func WithStateDir(dir string) Option {
	return func(o *Opts) {
		o.StateDir = dir
	}
}

func buildOpts(defaultModel string, opts []Option) Opts {
	cfg := Opts{Model: defaultModel, Temperature: defaultTemperature, MaxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return cfg
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	maxTokens   int
	debugMode   bool
	stateDir    string
}

// NewClient creates an OpenAI client. An API key is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := buildOpts(DefaultOpenAIModel, opts)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrNoAPIKey)
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("Client created", "provider", "openai", "model", cfg.Model, "debug", cfg.DebugMode)
	return &Client{
		chat:        chatCompletions{svc: &cli.Chat.Completions},
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		debugMode:   cfg.DebugMode,
		stateDir:    cfg.StateDir,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Complete sends a system and user prompt and returns the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (Completion, error) {
	maxTokens, temperature := resolve(req, c.maxTokens, c.temperature)
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
		Temperature:         openai.Float(temperature),
	}

	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Warn("Client.Complete: chat completion failed", "model", c.model, "error", err)
		return Completion{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if c.debugMode {
		writeDebugLog(c.stateDir, "Complete", c.model, params, resp)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, ErrNoChoicesReturned
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return Completion{}, ErrEmptyResponse
	}
	model := resp.Model
	if model == "" {
		model = c.model
	}
	out := Completion{
		Text:             text,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		Model:            model,
	}
	slog.Debug("Client.Complete succeeded", "model", model, "prompt_tokens", out.PromptTokens, "completion_tokens", out.CompletionTokens)
	return out, nil
}

func resolve(req Request, maxTokens int, temperature float64) (int, float64) {
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if req.Temperature >= 0 {
		temperature = req.Temperature
	}
	return maxTokens, temperature
}
