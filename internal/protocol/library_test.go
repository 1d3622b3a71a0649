package protocol

import (
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

func TestDefaultLibraryIsValid(t *testing.T) {
	lib, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}
	phase, step := lib.Start()
	if phase != models.PhaseDiscovery || step != StepWelcome {
		t.Errorf("unexpected start %s/%s", phase, step)
	}
	if got := len(lib.Phases()); got != 10 {
		t.Errorf("expected 10 phases, got %d", got)
	}
	if p, ok := lib.PhaseOf(StepDDRestate); !ok || p != models.PhaseDiggingDeeper {
		t.Errorf("PhaseOf(dd_restate) = %q %v", p, ok)
	}
	if _, err := lib.Step(models.PhaseDiscovery, StepDDRestate); !errors.Is(err, ErrUnknownStep) {
		t.Errorf("expected ErrUnknownStep for a step of another phase, got %v", err)
	}
	if _, err := lib.Phase("nope"); !errors.Is(err, ErrUnknownPhase) {
		t.Errorf("expected ErrUnknownPhase, got %v", err)
	}
}

func TestEveryEntryStepRendersWithoutInput(t *testing.T) {
	lib := MustDefault()
	v := viewOf(map[models.MetadataKey]string{
		models.KeyWorkType:            string(models.WorkTypeProblem),
		models.KeyProblemStatement:    "I can't focus",
		models.KeyGoalStatement:       "finish my thesis",
		models.KeyExperienceStatement: "the car accident",
	})
	for _, name := range lib.Phases() {
		p, _ := lib.Phase(name)
		s, _ := lib.Step(name, p.Entry)
		res := s.Respond(v, NoInput)
		if res.Kind != KindRender || strings.TrimSpace(res.Text) == "" {
			t.Errorf("entry of %s did not render text: %+v", name, res)
		}
		if len(s.Rules) > 0 {
			t.Errorf("entry of %s has validation rules but is rendered without input", name)
		}
	}
}

func TestNewLibraryRejectsMalformedPhases(t *testing.T) {
	ok := func(id models.StepID, next models.StepID) *Step {
		return &Step{ID: id, Respond: say("x"), Next: next}
	}
	tests := []struct {
		name   string
		phases []*Phase
		want   error
	}{
		{
			name: "duplicate step id",
			phases: []*Phase{
				{Name: "a", Entry: "a1", Steps: []*Step{ok("a1", "")}},
				{Name: "b", Entry: "a1", Steps: []*Step{ok("a1", "")}},
			},
			want: ErrDuplicateID,
		},
		{
			name:   "missing entry",
			phases: []*Phase{{Name: "a", Entry: "zz", Steps: []*Step{ok("a1", "")}}},
			want:   ErrUnknownStep,
		},
		{
			name:   "dangling next",
			phases: []*Phase{{Name: "a", Entry: "a1", Steps: []*Step{ok("a1", "nowhere")}}},
			want:   ErrDanglingNext,
		},
		{
			name: "next into the middle of another phase",
			phases: []*Phase{
				{Name: "a", Entry: "a1", Steps: []*Step{ok("a1", "b2")}},
				{Name: "b", Entry: "b1", Steps: []*Step{ok("b1", "b2"), ok("b2", "")}},
			},
			want: ErrDanglingNext,
		},
		{
			name:   "no phases",
			phases: nil,
			want:   ErrUnknownPhase,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLibrary(tt.phases...); !errors.Is(err, tt.want) {
				t.Errorf("NewLibrary() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestProblemGateLoopsThenRoutes(t *testing.T) {
	lib := MustDefault()
	gate, _ := lib.Step(models.PhaseProblemShifting, StepPSGate)

	res := gate.Respond(viewOf(nil), Answer("yes"))
	if res.Kind != KindJump || res.Step != StepPSEntry {
		t.Fatalf("expected jump to entry, got %+v", res)
	}

	exhausted := viewOf(map[models.MetadataKey]string{models.KeyCycles: "3"})
	if res := gate.Respond(exhausted, Answer("yes")); res.Kind != KindRoute || res.Target != models.PhaseDiggingDeeper {
		t.Errorf("expected route to digging deeper once cycles run out, got %+v", res)
	}

	res = gate.Respond(viewOf(nil), Answer("no"))
	if res.Kind != KindRoute || res.Target != models.PhaseDiggingDeeper {
		t.Fatalf("expected route to digging deeper, got %+v", res)
	}
	md := map[models.MetadataKey]string{}
	res.Patch.Apply(md)
	if md[models.KeyProblemsCleared] != "1" {
		t.Errorf("expected a cleared problem, got %v", md)
	}
}

func TestBlockageLoopEndsOnNothing(t *testing.T) {
	lib := MustDefault()
	feel, _ := lib.Step(models.PhaseBlockageShifting, StepBKFeel)
	v := viewOf(map[models.MetadataKey]string{models.KeyProblemStatement: "I freeze up"})

	res := feel.Respond(v, Answer("tight chest"))
	if res.Kind != KindRender || !strings.Contains(res.Text, "'tight chest'") {
		t.Errorf("expected the answer to be fed back, got %+v", res)
	}
	if res := feel.Respond(v, Answer("Nothing.")); res.Kind != KindJump || res.Step != StepBKCheck {
		t.Errorf("expected jump to check, got %+v", res)
	}
}

func TestCertaintyGateRoutesAtTen(t *testing.T) {
	lib := MustDefault()
	gate, _ := lib.Step(models.PhaseRealityShifting, StepRSCertaintyGate)
	v := viewOf(map[models.MetadataKey]string{models.KeyGoalStatement: "launch my shop"})
	if res := gate.Respond(v, Answer("10")); res.Kind != KindRoute || res.Target != models.PhaseIntegration {
		t.Errorf("expected route to integration, got %+v", res)
	}
	if res := gate.Respond(v, Answer("6")); res.Kind != KindRender || !strings.Contains(res.Text, "doubt") {
		t.Errorf("expected the doubt question, got %+v", res)
	}
}

func TestDiggingGateLeadsIntoFollowUpChecks(t *testing.T) {
	lib := MustDefault()
	gate, _ := lib.Step(models.PhaseDiggingDeeper, StepDDGate)
	scenario, _ := lib.Step(models.PhaseDiggingDeeper, StepDDScenarioGate)
	anything, _ := lib.Step(models.PhaseDiggingDeeper, StepDDAnythingGate)
	v := viewOf(map[models.MetadataKey]string{models.KeyProblemStatement: "I can't focus at work"})

	for _, in := range []string{"yes", "maybe"} {
		res := gate.Respond(v, Answer(in))
		if res.Kind != KindRender || !strings.Contains(res.Text, "situation in the future") {
			t.Errorf("%q at the first check: expected the future-scenario question, got %+v", in, res)
		}
		if gate.Next != StepDDScenarioGate {
			t.Errorf("first check should lead to %s, got %s", StepDDScenarioGate, gate.Next)
		}
	}
	if res := gate.Respond(v, Answer("no")); res.Kind != KindRoute || res.Target != models.PhaseIntegration {
		t.Errorf("expected a cleared problem to route to integration, got %+v", res)
	}
	exhausted := viewOf(map[models.MetadataKey]string{
		models.KeyProblemStatement: "I can't focus at work",
		models.KeyDiggingRounds:    "3",
	})
	if res := gate.Respond(exhausted, Answer("yes")); res.Kind != KindRoute || res.Target != models.PhaseIntegration {
		t.Errorf("expected integration once rounds run out, got %+v", res)
	}

	if res := scenario.Respond(v, Answer("yes")); res.Kind != KindJump || res.Step != StepDDAskProblem {
		t.Errorf("scenario yes: expected jump to the restated problem, got %+v", res)
	}
	if res := scenario.Respond(v, Answer("no")); res.Kind != KindRender || !strings.Contains(res.Text, "anything else") {
		t.Errorf("scenario no: expected the anything-else question, got %+v", res)
	}
	if res := anything.Respond(v, Answer("maybe")); res.Kind != KindJump || res.Step != StepDDAskProblem {
		t.Errorf("anything-else maybe: expected jump to the restated problem, got %+v", res)
	}
	if res := anything.Respond(v, Answer("no")); res.Kind != KindRoute || res.Target != models.PhaseIntegration {
		t.Errorf("anything-else no: expected integration, got %+v", res)
	}
}

func TestTraumaFeelsNewIdentity(t *testing.T) {
	lib := MustDefault()
	step, _ := lib.Step(models.PhaseTraumaShifting, StepTSFeelNew)
	v := viewOf(map[models.MetadataKey]string{models.KeyIdentity: "a helpless person"})

	res := step.Respond(v, Answer("someone who is safe"))
	if res.Kind != KindRender || !strings.Contains(res.Text, "Feel yourself being 'someone who is safe'") {
		t.Errorf("expected the new identity to be felt, got %+v", res)
	}
	md := map[models.MetadataKey]string{}
	res.Patch.Apply(md)
	if md[models.KeyNewIdentity] != "someone who is safe" {
		t.Errorf("expected the new identity to be captured, got %v", md)
	}
	if step.Next != StepTSCheckIdentity {
		t.Errorf("expected %s next, got %s", StepTSCheckIdentity, step.Next)
	}
}
