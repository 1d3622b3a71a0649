package genai

import "testing"

func TestTokenCounter(t *testing.T) {
	tc, err := NewTokenCounter()
	if err != nil {
		t.Fatalf("NewTokenCounter: %v", err)
	}
	if n := tc.CountTokens("hello world"); n < 1 || n > 4 {
		t.Errorf("unexpected token count %d", n)
	}
	if tc.CountTokens("") != 0 {
		t.Error("empty text should have no tokens")
	}
	req := Request{System: "Answer YES or NO.", User: "I want to stop feeling anxious"}
	if tc.EstimatePrompt(req) <= tc.CountTokens(req.User) {
		t.Error("estimate should include the system prompt and framing")
	}
}

func TestTokenCounterNilFallback(t *testing.T) {
	var tc *TokenCounter
	if n := tc.CountTokens("12345678"); n != 2 {
		t.Errorf("expected character fallback of 2, got %d", n)
	}
}
