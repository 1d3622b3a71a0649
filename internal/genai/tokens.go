package genai

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// messageOverhead approximates the per-message framing tokens of a chat request.
const messageOverhead = 4

// TokenCounter estimates prompt sizes before a call is made.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a counter using the GPT-4 encoding, which is close enough
// for every supported model.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		// 4 chars per token
		return len(text) / 4
	}
	n, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}

// EstimatePrompt returns the prompt-side token count of req.
func (tc *TokenCounter) EstimatePrompt(req Request) int {
	return tc.CountTokens(req.System) + tc.CountTokens(req.User) + 2*messageOverhead
}
