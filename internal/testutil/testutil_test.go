package testutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/ShiftGuide/internal/genai"
)

// mockTestingT records failures instead of failing the test.
type mockTestingT struct {
	failed bool
	fatal  bool
	msg    string
}

func (m *mockTestingT) Helper() {}

func (m *mockTestingT) Errorf(format string, args ...any) {
	m.failed = true
	m.msg = fmt.Sprintf(format, args...)
}

func (m *mockTestingT) Fatalf(format string, args ...any) {
	m.failed = true
	m.fatal = true
	m.msg = fmt.Sprintf(format, args...)
}

func TestAssertHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		expected   int
		actual     int
		shouldFail bool
	}{
		{"matching status codes", 200, 200, false},
		{"different status codes", 200, 404, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			AssertHTTPStatus(mockT, tt.expected, tt.actual, "test context")
			if mockT.failed != tt.shouldFail {
				t.Errorf("failed = %v, want %v (%s)", mockT.failed, tt.shouldFail, mockT.msg)
			}
		})
	}
}

func TestAssertJSONResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.WriteString(`{"status":"ok","result":1}`)
	mockT := &mockTestingT{}
	body := AssertJSONResponse(mockT, rr, "ok")
	if mockT.failed || body["result"] != float64(1) {
		t.Errorf("unexpected outcome failed=%v body=%v", mockT.failed, body)
	}

	rr = httptest.NewRecorder()
	rr.WriteString(`{"status":"error"}`)
	mockT = &mockTestingT{}
	AssertJSONResponse(mockT, rr, "ok")
	if !mockT.failed {
		t.Error("expected a status mismatch to fail")
	}

	rr = httptest.NewRecorder()
	rr.WriteString(`not json`)
	mockT = &mockTestingT{}
	AssertJSONResponse(mockT, rr, "ok")
	if !mockT.fatal {
		t.Error("expected invalid JSON to be fatal")
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	req := CreateHTTPRequest(t, http.MethodPost, "/sessions", map[string]string{"userId": "u1"})
	if req.Method != http.MethodPost || req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("unexpected request %+v", req)
	}
	if req.ContentLength == 0 {
		t.Error("expected a body")
	}
}

func TestFakeCompleter(t *testing.T) {
	f := NewFakeCompleter("YES", "NO")
	ctx := context.Background()
	var got []string
	for i := 0; i < 3; i++ {
		out, err := f.Complete(ctx, genai.Request{User: "x"})
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, out.Text)
	}
	if fmt.Sprint(got) != "[YES NO NO]" {
		t.Errorf("unexpected replies %v", got)
	}
	if f.Calls() != 3 {
		t.Errorf("expected 3 calls, got %d", f.Calls())
	}

	f.Err = errors.New("quota")
	if _, err := f.Complete(ctx, genai.Request{}); err == nil {
		t.Error("expected configured error")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	f.Err = nil
	if _, err := f.Complete(cancelled, genai.Request{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
