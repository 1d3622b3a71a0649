package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.params = params
	return m.resp, m.err
}

func newTestClient(svc chatService) *Client {
	return &Client{chat: svc, model: DefaultOpenAIModel, maxTokens: 64}
}

func TestComplete_Success(t *testing.T) {
	mock := &mockChatService{resp: openai.ChatCompletion{
		Model: "gpt-4o-mini-2024-07-18",
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "  YES \n"}},
		},
		Usage: openai.CompletionUsage{PromptTokens: 40, CompletionTokens: 1},
	}}
	client := newTestClient(mock)
	out, err := client.Complete(context.Background(), Request{System: "sys", User: "usr"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Text != "YES" {
		t.Errorf("expected trimmed 'YES', got %q", out.Text)
	}
	if out.TotalTokens() != 41 || out.Model != "gpt-4o-mini-2024-07-18" {
		t.Errorf("unexpected completion %+v", out)
	}
	if len(mock.params.Messages) != 2 {
		t.Errorf("expected system and user messages, got %d", len(mock.params.Messages))
	}
}

func TestComplete_ServiceError(t *testing.T) {
	client := newTestClient(&mockChatService{err: errors.New("service failure")})
	_, err := client.Complete(context.Background(), Request{System: "sys", User: "usr"})
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	client := newTestClient(&mockChatService{resp: openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}})
	_, err := client.Complete(context.Background(), Request{User: "usr"})
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestComplete_EmptyText(t *testing.T) {
	client := newTestClient(&mockChatService{resp: openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "   "}}},
	}})
	_, err := client.Complete(context.Background(), Request{User: "usr"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected empty response error, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	_, err := NewClient()
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-4o"), WithMaxTokens(32))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli.Model() != "gpt-4o" || cli.maxTokens != 32 {
		t.Errorf("options not applied: model=%q maxTokens=%d", cli.Model(), cli.maxTokens)
	}
}

func TestResolveDefaults(t *testing.T) {
	n, temp := resolve(Request{Temperature: -1}, 100, 0.3)
	if n != 100 || temp != 0.3 {
		t.Errorf("expected client defaults, got %d %v", n, temp)
	}
	n, temp = resolve(Request{MaxTokens: 10, Temperature: 0}, 100, 0.3)
	if n != 10 || temp != 0 {
		t.Errorf("expected request values, got %d %v", n, temp)
	}
}
