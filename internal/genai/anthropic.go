package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// messageService is the slice of the Anthropic SDK the client needs.
type messageService interface {
	Create(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

type messages struct {
	svc *anthropic.MessageService
}

func (m messages) Create(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return m.svc.New(ctx, params)
}

// AnthropicClient wraps the Anthropic Messages API.
type AnthropicClient struct {
	msgs        messageService
	model       string
	temperature float64
	maxTokens   int
	debugMode   bool
	stateDir    string
}

// NewAnthropicClient creates an Anthropic client. An API key is required.
func NewAnthropicClient(opts ...Option) (*AnthropicClient, error) {
	cfg := buildOpts(DefaultAnthropicModel, opts)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrNoAPIKey)
	}
	cli := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("AnthropicClient created", "model", cfg.Model, "debug", cfg.DebugMode)
	return &AnthropicClient{
		msgs:        messages{svc: &cli.Messages},
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		debugMode:   cfg.DebugMode,
		stateDir:    cfg.StateDir,
	}, nil
}

// Model returns the configured model name.
func (c *AnthropicClient) Model() string {
	return c.model
}

// Complete sends the request as a single user message with a system prompt.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Completion, error) {
	maxTokens, temperature := resolve(req, c.maxTokens, c.temperature)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{{
			Role:    anthropic.MessageParamRole("user"),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.User)},
		}},
		Temperature: anthropic.Float(temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System, Type: "text"}}
	}

	resp, err := c.msgs.Create(ctx, params)
	if err != nil {
		slog.Warn("AnthropicClient.Complete: message request failed", "model", c.model, "error", err)
		return Completion{}, fmt.Errorf("anthropic messages: %w", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return Completion{}, ErrNoChoicesReturned
	}
	if c.debugMode {
		writeDebugLog(c.stateDir, "Complete", c.model, params, resp)
	}

	var sb strings.Builder
	for i := range resp.Content {
		if block := &resp.Content[i]; block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return Completion{}, ErrEmptyResponse
	}
	model := string(resp.Model)
	if model == "" {
		model = c.model
	}
	out := Completion{
		Text:             text,
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		Model:            model,
	}
	slog.Debug("AnthropicClient.Complete succeeded", "model", model, "prompt_tokens", out.PromptTokens, "completion_tokens", out.CompletionTokens)
	return out, nil
}
