package models

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStartSessionRequestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  StartSessionRequest
		want error
	}{
		{"valid", StartSessionRequest{UserID: "user-1"}, nil},
		{"empty", StartSessionRequest{UserID: "  "}, ErrEmptyUserID},
		{"too long", StartSessionRequest{UserID: strings.Repeat("u", MaxUserIDLength+1)}, ErrUserIDTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTurnRequestValidate(t *testing.T) {
	if err := (TurnRequest{}).Validate(); !errors.Is(err, ErrMissingUserInput) {
		t.Errorf("expected ErrMissingUserInput, got %v", err)
	}
	long := strings.Repeat("x", MaxUserInputLength+1)
	if err := (TurnRequest{UserInput: &long}).Validate(); !errors.Is(err, ErrUserInputTooLong) {
		t.Errorf("expected ErrUserInputTooLong, got %v", err)
	}
	ok := "yes"
	if err := (TurnRequest{UserInput: &ok}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSessionContextCloneIsDeep(t *testing.T) {
	sc := NewSessionContext("s1", "u1", PhaseDiscovery, "ds_welcome", time.Now())
	sc.Metadata[KeyProblemStatement] = "I can't sleep"
	sc.UserResponses["wt_problem"] = "I can't sleep"
	sc.StepHistory = append(sc.StepHistory, HistoryEntry{Phase: PhaseDiscovery, Step: "ds_ready_gate"})

	c := sc.Clone()
	c.Metadata[KeyProblemStatement] = "changed"
	c.UserResponses["wt_problem"] = "changed"
	c.StepHistory[0].Step = "changed"

	if sc.Get(KeyProblemStatement) != "I can't sleep" {
		t.Error("clone shares metadata with original")
	}
	if sc.UserResponses["wt_problem"] != "I can't sleep" {
		t.Error("clone shares user responses with original")
	}
	if sc.StepHistory[0].Step != "ds_ready_gate" {
		t.Error("clone shares step history with original")
	}
}

func TestSessionContextInt(t *testing.T) {
	sc := NewSessionContext("s1", "u1", PhaseDiscovery, "ds_welcome", time.Now())
	if sc.Int(KeyCycles) != 0 {
		t.Error("unset counter should read as 0")
	}
	sc.Metadata[KeyCycles] = "3"
	if sc.Int(KeyCycles) != 3 {
		t.Errorf("expected 3, got %d", sc.Int(KeyCycles))
	}
	sc.Metadata[KeyCycles] = "x"
	if sc.Int(KeyCycles) != 0 {
		t.Error("malformed counter should read as 0")
	}
}

func TestMethodHelpers(t *testing.T) {
	if !MethodIdentityShifting.ProblemMethod() {
		t.Error("identity shifting should be a problem method")
	}
	if MethodRealityShifting.ProblemMethod() {
		t.Error("reality shifting is not offered for problems")
	}
	if MethodBeliefShifting.Phase() != PhaseBeliefShifting {
		t.Errorf("unexpected phase %q", MethodBeliefShifting.Phase())
	}
	if WorkType("other").Valid() {
		t.Error("unknown work type reported valid")
	}
}

func TestAPIResponses(t *testing.T) {
	if r := Success(1); r.Status != string(APIStatusOK) || r.Result != 1 {
		t.Errorf("unexpected success response %+v", r)
	}
	if r := Error("boom"); r.Status != string(APIStatusError) || r.Message != "boom" {
		t.Errorf("unexpected error response %+v", r)
	}
}
