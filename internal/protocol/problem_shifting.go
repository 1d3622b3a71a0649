package protocol

import (
	"fmt"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// Problem Shifting step ids.
const (
	StepPSEntry    models.StepID = "ps_entry"
	StepPSFeel     models.StepID = "ps_feel"
	StepPSNeed     models.StepID = "ps_need"
	StepPSNeedFeel models.StepID = "ps_need_feel"
	StepPSDesired  models.StepID = "ps_desired"
	StepPSCheck    models.StepID = "ps_check"
	StepPSGate     models.StepID = "ps_gate"
)

// feelWhatHappens is the sensation prompt every modality shares.
func feelWhatHappens(feeling string) string {
	return fmt.Sprintf("Feel %s... what happens in yourself when you feel %s?", quote(feeling), quote(feeling))
}

// stillAProblem asks whether the problem is still present.
func stillAProblem(problem string) string {
	return fmt.Sprintf("Feel the problem %s again... does it still feel like a problem?", quote(problem))
}

// closeProblem ends a modality's core sequence: a "no" clears the problem and either
// answer moves on to digging deeper once looping is no longer allowed.
func closeProblem(v View, in Input, loop models.StepID, resets ...Op) Result {
	if !Affirmative(in.Text) {
		return RouteTo(models.PhaseDiggingDeeper, Incr(models.KeyProblemsCleared))
	}
	if canLoop(v, models.KeyCycles, MaxCycles) {
		return JumpTo(loop, append(resets, Incr(models.KeyCycles))...)
	}
	return RouteTo(models.PhaseDiggingDeeper)
}

// ProblemShifting dissolves the felt sense of a problem.
func ProblemShifting() *Phase {
	return &Phase{
		Name:        models.PhaseProblemShifting,
		MaxDuration: 20 * time.Minute,
		Entry:       StepPSEntry,
		Requires:    requireProblem,
		Scoped: []models.MetadataKey{
			models.KeyCycles, models.KeyFeeling, models.KeyNeed, models.KeyDesiredFeeling,
		},
		Steps: []*Step{
			{
				ID:      StepPSEntry,
				Expects: models.ResponseNone,
				Respond: func(v View, in Input) Result {
					return Render(fmt.Sprintf("Feel the problem %s... what does it feel like?", quote(CurrentProblem(v))))
				},
				Next: StepPSFeel,
			},
			{
				ID:      StepPSFeel,
				Expects: models.ResponseFeeling,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					return Render(feelWhatHappens(v.Remembered(models.KeyFeeling, in)), SetOnce(models.KeyFeeling, in.Trimmed()))
				},
				Next: StepPSNeed,
			},
			{
				ID:      StepPSNeed,
				Expects: models.ResponseDescription,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					return Render(fmt.Sprintf("What needs to happen for %s to not be a problem?", quote(CurrentProblem(v))))
				},
				Next: StepPSNeedFeel,
			},
			{
				ID:      StepPSNeedFeel,
				Expects: models.ResponseDescription,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					need := v.Remembered(models.KeyNeed, in)
					return Render(fmt.Sprintf("What would you feel like if %s had already happened?", quote(need)),
						SetOnce(models.KeyNeed, in.Trimmed()))
				},
				Next: StepPSDesired,
			},
			{
				ID:      StepPSDesired,
				Expects: models.ResponseFeeling,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					desired := v.Remembered(models.KeyDesiredFeeling, in)
					return Render(fmt.Sprintf("Feel %s... what does %s feel like?", quote(desired), quote(desired)),
						SetOnce(models.KeyDesiredFeeling, in.Trimmed()))
				},
				Next: StepPSCheck,
			},
			{
				ID:      StepPSCheck,
				Expects: models.ResponseFeeling,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					return Render(stillAProblem(CurrentProblem(v)))
				},
				Next: StepPSGate,
			},
			{
				ID:      StepPSGate,
				Expects: models.ResponseYesNo,
				Rules:   []ValidationRule{YesNo(msgYesNo)},
				Respond: func(v View, in Input) Result {
					return closeProblem(v, in, StepPSEntry,
						Clear(models.KeyFeeling), Clear(models.KeyNeed), Clear(models.KeyDesiredFeeling))
				},
			},
		},
	}
}
