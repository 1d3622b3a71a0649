package genai

import (
	"context"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

type mockMessageService struct {
	resp   *anthropic.Message
	err    error
	params anthropic.MessageNewParams
}

func (m *mockMessageService) Create(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	m.params = params
	return m.resp, m.err
}

func TestAnthropicComplete_Success(t *testing.T) {
	mock := &mockMessageService{resp: &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: "NO"}},
		Usage:   anthropic.Usage{InputTokens: 30, OutputTokens: 2},
	}}
	client := &AnthropicClient{msgs: mock, model: DefaultAnthropicModel, maxTokens: 16}
	out, err := client.Complete(context.Background(), Request{System: "sys", User: "usr"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "NO" || out.PromptTokens != 30 || out.CompletionTokens != 2 {
		t.Errorf("unexpected completion %+v", out)
	}
	if out.Model != DefaultAnthropicModel {
		t.Errorf("expected configured model as fallback, got %q", out.Model)
	}
	if len(mock.params.System) != 1 || mock.params.MaxTokens != 16 {
		t.Errorf("unexpected params %+v", mock.params)
	}
}

func TestAnthropicComplete_Errors(t *testing.T) {
	client := &AnthropicClient{msgs: &mockMessageService{err: errors.New("overloaded")}, model: DefaultAnthropicModel}
	if _, err := client.Complete(context.Background(), Request{User: "u"}); err == nil {
		t.Error("expected provider error")
	}
	client.msgs = &mockMessageService{resp: &anthropic.Message{}}
	if _, err := client.Complete(context.Background(), Request{User: "u"}); !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected ErrNoChoicesReturned, got %v", err)
	}
}

func TestNewAnthropicClient_NoKey(t *testing.T) {
	if _, err := NewAnthropicClient(); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}
