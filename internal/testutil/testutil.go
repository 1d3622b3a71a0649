// Package testutil provides common test utilities and helpers for ShiftGuide tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/BTreeMap/ShiftGuide/internal/genai"
)

// TB is the subset of testing.TB the assertion helpers use.
type TB interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}
	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Errorf("response missing or invalid 'status' field")
	}
	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
			return nil
		}
		reqBody = bytes.NewBuffer(jsonData)
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// FakeCompleter is a scripted genai.Completer. Replies are returned in order and the
// last one repeats; Err, when set, is returned instead.
type FakeCompleter struct {
	mu               sync.Mutex
	Replies          []string
	Err              error
	PromptTokens     int
	CompletionTokens int
	ModelName        string
	Requests         []genai.Request
}

// NewFakeCompleter returns a completer replying with replies in order.
func NewFakeCompleter(replies ...string) *FakeCompleter {
	return &FakeCompleter{Replies: replies, PromptTokens: 100, CompletionTokens: 2, ModelName: genai.DefaultOpenAIModel}
}

// Complete implements genai.Completer.
func (f *FakeCompleter) Complete(ctx context.Context, req genai.Request) (genai.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	if err := ctx.Err(); err != nil {
		return genai.Completion{}, err
	}
	if f.Err != nil {
		return genai.Completion{}, f.Err
	}
	reply := ""
	if n := len(f.Requests); len(f.Replies) > 0 {
		reply = f.Replies[min(n, len(f.Replies))-1]
	}
	return genai.Completion{
		Text:             strings.TrimSpace(reply),
		PromptTokens:     f.PromptTokens,
		CompletionTokens: f.CompletionTokens,
		Model:            f.ModelName,
	}, nil
}

// Model implements the optional model reporter the assistance manager looks for.
func (f *FakeCompleter) Model() string {
	return f.ModelName
}

// Calls returns how many requests were received.
func (f *FakeCompleter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
