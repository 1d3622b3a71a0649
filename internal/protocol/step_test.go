package protocol

import (
	"testing"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

func TestPatchApply(t *testing.T) {
	md := map[models.MetadataKey]string{models.KeyFeeling: "tight"}
	changed := Patch{
		SetOnce(models.KeyFeeling, "yes"),
		SetOnce(models.KeyNeed, "rest"),
		Set(models.KeyBelief, "I'm stuck"),
		Incr(models.KeyCycles),
		Incr(models.KeyCycles),
		Clear(models.KeyDoubt),
	}.Apply(md)

	if md[models.KeyFeeling] != "tight" {
		t.Errorf("SetOnce overwrote an existing value: %q", md[models.KeyFeeling])
	}
	if md[models.KeyNeed] != "rest" || md[models.KeyBelief] != "I'm stuck" {
		t.Errorf("unexpected metadata %v", md)
	}
	if md[models.KeyCycles] != "2" {
		t.Errorf("expected cycles 2, got %q", md[models.KeyCycles])
	}
	// need, belief and two increments; the no-op SetOnce and Clear are not reported.
	if len(changed) != 4 {
		t.Errorf("expected 4 changes, got %v", changed)
	}

	Patch{Clear(models.KeyNeed)}.Apply(md)
	if _, ok := md[models.KeyNeed]; ok {
		t.Error("Clear left the key in place")
	}
}

func TestRememberedPrefersStoredValue(t *testing.T) {
	sc := models.NewSessionContext("s", "u", models.PhaseProblemShifting, StepPSFeel, testNow)
	v := NewView(sc)
	if got := v.Remembered(models.KeyFeeling, Answer(" heavy ")); got != "heavy" {
		t.Errorf("expected live input, got %q", got)
	}
	sc.Metadata[models.KeyFeeling] = "heavy"
	if got := v.Remembered(models.KeyFeeling, Answer("yes")); got != "heavy" {
		t.Errorf("confirmation replaced the stored value: %q", got)
	}
}

func TestStepHelpers(t *testing.T) {
	lib := MustDefault()
	s, err := lib.Step(models.PhaseIdentityShifting, StepISFeelIdentity)
	if err != nil {
		t.Fatal(err)
	}
	if tr, ok := s.RewriteTrigger(); !ok || tr.Condition != models.ConditionIdentityWording {
		t.Errorf("expected identity rewrite trigger, got %+v %v", tr, ok)
	}
	closeStep, _ := lib.Step(models.PhaseIntegration, StepINClose)
	if !closeStep.Terminal() {
		t.Error("closing step should be terminal")
	}
	if s.Terminal() {
		t.Error("identity step should not be terminal")
	}
}
