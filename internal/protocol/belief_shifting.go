package protocol

import (
	"fmt"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// Belief Shifting step ids.
const (
	StepBSEntry       models.StepID = "bs_entry"
	StepBSFeelBelief  models.StepID = "bs_feel_belief"
	StepBSFeel        models.StepID = "bs_feel"
	StepBSRather      models.StepID = "bs_rather"
	StepBSFeelNew     models.StepID = "bs_feel_new"
	StepBSCheckBelief models.StepID = "bs_check_belief"
	StepBSBeliefGate  models.StepID = "bs_belief_gate"
	StepBSProblemGate models.StepID = "bs_problem_gate"
)

// BeliefShifting dissolves the belief that keeps a problem in place.
func BeliefShifting() *Phase {
	return &Phase{
		Name:        models.PhaseBeliefShifting,
		MaxDuration: 20 * time.Minute,
		Entry:       StepBSEntry,
		Requires:    requireProblem,
		Scoped: []models.MetadataKey{
			models.KeyCycles, models.KeyRounds, models.KeyBelief, models.KeyFeeling, models.KeyNewBelief,
		},
		Steps: []*Step{
			{
				ID:      StepBSEntry,
				Expects: models.ResponseNone,
				Respond: func(v View, in Input) Result {
					return Render(fmt.Sprintf("Feel the problem %s... what do you believe about yourself that causes you to experience this problem?",
						quote(CurrentProblem(v))))
				},
				Next: StepBSFeelBelief,
			},
			{
				ID:       StepBSFeelBelief,
				Expects:  models.ResponseBelief,
				Rules:    []ValidationRule{MinLength(2, msgFewWords)},
				Triggers: []AITrigger{{Condition: models.ConditionBeliefWording, Action: models.ActionRewrite}},
				Respond: func(v View, in Input) Result {
					belief := v.Remembered(models.KeyBelief, in)
					return Render(fmt.Sprintf("Feel yourself believing %s... what does it feel like?", quote(belief)),
						SetOnce(models.KeyBelief, in.Trimmed()))
				},
				Next: StepBSFeel,
			},
			{
				ID:      StepBSFeel,
				Expects: models.ResponseFeeling,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					return Render(feelWhatHappens(v.Remembered(models.KeyFeeling, in)), SetOnce(models.KeyFeeling, in.Trimmed()))
				},
				Next: StepBSRather,
			},
			{
				ID:      StepBSRather,
				Expects: models.ResponseDescription,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					return Render(fmt.Sprintf("What would you rather believe instead of %s?", quote(v.Get(models.KeyBelief))))
				},
				Next: StepBSFeelNew,
			},
			{
				ID:      StepBSFeelNew,
				Expects: models.ResponseBelief,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					next := v.Remembered(models.KeyNewBelief, in)
					return Render(fmt.Sprintf("Feel yourself believing %s... what does that feel like?", quote(next)),
						SetOnce(models.KeyNewBelief, in.Trimmed()))
				},
				Next: StepBSCheckBelief,
			},
			{
				ID:      StepBSCheckBelief,
				Expects: models.ResponseFeeling,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					return Render(fmt.Sprintf("Do you still believe %s?", quote(v.Get(models.KeyBelief))))
				},
				Next: StepBSBeliefGate,
			},
			{
				ID:      StepBSBeliefGate,
				Expects: models.ResponseYesNo,
				Rules:   []ValidationRule{YesNo(msgYesNo)},
				Respond: func(v View, in Input) Result {
					if Affirmative(in.Text) && canLoop(v, models.KeyRounds, MaxCycles) {
						return JumpTo(StepBSFeelBelief,
							Clear(models.KeyFeeling), Clear(models.KeyNewBelief), Incr(models.KeyRounds))
					}
					return Render(stillAProblem(CurrentProblem(v)))
				},
				Next: StepBSProblemGate,
			},
			{
				ID:      StepBSProblemGate,
				Expects: models.ResponseYesNo,
				Rules:   []ValidationRule{YesNo(msgYesNo)},
				Respond: func(v View, in Input) Result {
					return closeProblem(v, in, StepBSEntry,
						Clear(models.KeyBelief), Clear(models.KeyFeeling), Clear(models.KeyNewBelief), Clear(models.KeyRounds))
				},
			},
		},
	}
}
