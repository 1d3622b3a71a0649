// Package models defines the core data structures for ShiftGuide.
//
// It includes the session context, turn input/output, usage accounting and the
// API envelopes shared across modules.
package models

import (
	"errors"
	"strings"
)

// Validation constants for input validation
const (
	// MaxUserInputLength defines the maximum accepted length of a single user turn.
	MaxUserInputLength = 4096
	// MaxUserIDLength defines the maximum length of a caller-supplied user identifier.
	MaxUserIDLength = 256
)

// Error variables for better error handling and testability
var (
	ErrEmptyUserID        = errors.New("user ID cannot be empty")
	ErrUserIDTooLong      = errors.New("user ID exceeds maximum length")
	ErrEmptySessionID     = errors.New("session ID cannot be empty")
	ErrMissingUserInput   = errors.New("userInput is required after the session has started")
	ErrUserInputTooLong   = errors.New("userInput exceeds maximum length")
	ErrEmptyInboundSender = errors.New("inbound message sender cannot be empty")
)

// APIStatus defines the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates a successful request.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an error occurred.
	APIStatusError APIStatus = "error"
)

// StartSessionRequest is the body of POST /sessions.
type StartSessionRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"` // optional caller-chosen id
}

// Validate checks the request fields.
func (r StartSessionRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrEmptyUserID
	}
	if len(r.UserID) > MaxUserIDLength {
		return ErrUserIDTooLong
	}
	return nil
}

// TurnRequest is the body of POST /sessions/{id}/turns.
type TurnRequest struct {
	UserInput *string `json:"userInput"`
}

// Validate checks the request fields.
func (r TurnRequest) Validate() error {
	if r.UserInput == nil {
		return ErrMissingUserInput
	}
	if len(*r.UserInput) > MaxUserInputLength {
		return ErrUserInputTooLong
	}
	return nil
}

// InboundMessage is a text message received from a messaging channel.
type InboundMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// Validate checks the inbound message fields.
func (m InboundMessage) Validate() error {
	if strings.TrimSpace(m.From) == "" {
		return ErrEmptyInboundSender
	}
	return nil
}

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
