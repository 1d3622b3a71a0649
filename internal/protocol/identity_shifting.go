package protocol

import (
	"fmt"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// Identity Shifting step ids.
const (
	StepISEntry         models.StepID = "is_entry"
	StepISFeelIdentity  models.StepID = "is_feel_identity"
	StepISFeel          models.StepID = "is_feel"
	StepISDissolve      models.StepID = "is_dissolve"
	StepISFeelNew       models.StepID = "is_feel_new"
	StepISCheckIdentity models.StepID = "is_check_identity"
	StepISIdentityGate  models.StepID = "is_identity_gate"
	StepISProblemGate   models.StepID = "is_problem_gate"
)

// feelYourselfBeing is the identity prompt. It is on the rewrite whitelist.
func feelYourselfBeing(identity string) string {
	return fmt.Sprintf("Feel yourself being %s... what does it feel like?", quote(identity))
}

// IdentityShifting dissolves the identity a person is being while the problem runs.
func IdentityShifting() *Phase {
	return &Phase{
		Name:        models.PhaseIdentityShifting,
		MaxDuration: 20 * time.Minute,
		Entry:       StepISEntry,
		Requires:    requireProblem,
		Scoped: []models.MetadataKey{
			models.KeyCycles, models.KeyRounds, models.KeyIdentity, models.KeyFeeling, models.KeyNewIdentity,
		},
		Steps: []*Step{
			{
				ID:      StepISEntry,
				Expects: models.ResponseNone,
				Respond: func(v View, in Input) Result {
					return Render(fmt.Sprintf("Feel the problem %s... what kind of person are you being when you're experiencing this problem?",
						quote(CurrentProblem(v))))
				},
				Next: StepISFeelIdentity,
			},
			{
				ID:       StepISFeelIdentity,
				Expects:  models.ResponseIdentity,
				Rules:    []ValidationRule{MinLength(2, msgFewWords)},
				Triggers: []AITrigger{{Condition: models.ConditionIdentityWording, Action: models.ActionRewrite}},
				Respond: func(v View, in Input) Result {
					return Render(feelYourselfBeing(v.Remembered(models.KeyIdentity, in)), SetOnce(models.KeyIdentity, in.Trimmed()))
				},
				Next: StepISFeel,
			},
			{
				ID:      StepISFeel,
				Expects: models.ResponseFeeling,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					return Render(feelWhatHappens(v.Remembered(models.KeyFeeling, in)), SetOnce(models.KeyFeeling, in.Trimmed()))
				},
				Next: StepISDissolve,
			},
			{
				ID:      StepISDissolve,
				Expects: models.ResponseDescription,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					return Render(fmt.Sprintf("What are you when you're not being %s?", quote(v.Get(models.KeyIdentity))))
				},
				Next: StepISFeelNew,
			},
			{
				ID:      StepISFeelNew,
				Expects: models.ResponseIdentity,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					next := v.Remembered(models.KeyNewIdentity, in)
					return Render(fmt.Sprintf("Feel yourself being %s... what does that feel like?", quote(next)),
						SetOnce(models.KeyNewIdentity, in.Trimmed()))
				},
				Next: StepISCheckIdentity,
			},
			{
				ID:      StepISCheckIdentity,
				Expects: models.ResponseFeeling,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					identity := quote(v.Get(models.KeyIdentity))
					return Render(fmt.Sprintf("Feel yourself being %s again... can you still feel yourself being %s?", identity, identity))
				},
				Next: StepISIdentityGate,
			},
			{
				ID:      StepISIdentityGate,
				Expects: models.ResponseYesNo,
				Rules:   []ValidationRule{YesNo(msgYesNo)},
				Respond: func(v View, in Input) Result {
					if Affirmative(in.Text) && canLoop(v, models.KeyRounds, MaxCycles) {
						return JumpTo(StepISFeelIdentity,
							Clear(models.KeyFeeling), Clear(models.KeyNewIdentity), Incr(models.KeyRounds))
					}
					return Render(stillAProblem(CurrentProblem(v)))
				},
				Next: StepISProblemGate,
			},
			{
				ID:      StepISProblemGate,
				Expects: models.ResponseYesNo,
				Rules:   []ValidationRule{YesNo(msgYesNo)},
				Respond: func(v View, in Input) Result {
					return closeProblem(v, in, StepISEntry,
						Clear(models.KeyIdentity), Clear(models.KeyFeeling), Clear(models.KeyNewIdentity), Clear(models.KeyRounds))
				},
			},
		},
	}
}
