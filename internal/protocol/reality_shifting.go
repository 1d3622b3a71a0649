package protocol

import (
	"fmt"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// Reality Shifting step ids.
const (
	StepRSEntry         models.StepID = "rs_entry"
	StepRSFeel          models.StepID = "rs_feel"
	StepRSCertainty     models.StepID = "rs_certainty"
	StepRSCertaintyGate models.StepID = "rs_certainty_gate"
	StepRSFeelDoubt     models.StepID = "rs_feel_doubt"
	StepRSDoubtFeel     models.StepID = "rs_doubt_feel"
	StepRSDoubtAgain    models.StepID = "rs_doubt_again"
	StepRSDoubtCheck    models.StepID = "rs_doubt_check"
	StepRSDoubtGate     models.StepID = "rs_doubt_gate"
)

const msgCertainty = "Please answer with a number from 0 to 10."

func certaintyQuestion(goal string) string {
	return fmt.Sprintf("On a scale from 0 to 10, how certain are you that you will achieve %s?", quote(goal))
}

// RealityShifting works on the doubts that stand between the user and a goal.
func RealityShifting() *Phase {
	return &Phase{
		Name:        models.PhaseRealityShifting,
		MaxDuration: 20 * time.Minute,
		Entry:       StepRSEntry,
		Requires:    requireAny(models.KeyGoalStatement, models.KeyGoalWithDeadline),
		Scoped: []models.MetadataKey{
			models.KeyCycles, models.KeyRounds, models.KeyFeeling, models.KeyDoubt, models.KeyDoubtFeeling,
		},
		Steps: []*Step{
			{
				ID:      StepRSEntry,
				Expects: models.ResponseNone,
				Respond: func(v View, in Input) Result {
					return Render(fmt.Sprintf("Imagine you have already achieved %s... what does it feel like?", quote(CurrentGoal(v))))
				},
				Next: StepRSFeel,
			},
			{
				ID:      StepRSFeel,
				Expects: models.ResponseFeeling,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					return Render(feelWhatHappens(v.Remembered(models.KeyFeeling, in)), SetOnce(models.KeyFeeling, in.Trimmed()))
				},
				Next: StepRSCertainty,
			},
			{
				ID:      StepRSCertainty,
				Expects: models.ResponseFeeling,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					return Render(certaintyQuestion(CurrentGoal(v)))
				},
				Next: StepRSCertaintyGate,
			},
			{
				ID:      StepRSCertaintyGate,
				Expects: models.ResponseRating,
				Rules:   []ValidationRule{IntRange(0, 10, msgCertainty)},
				Respond: func(v View, in Input) Result {
					n, _ := ParseInt(in.Text)
					if n >= 10 || !canLoop(v, models.KeyRounds, MaxDoubtRounds) {
						return RouteTo(models.PhaseIntegration)
					}
					return Render(fmt.Sprintf("What's the doubt that stops it from being a 10 for %s?", quote(CurrentGoal(v))))
				},
				Next: StepRSFeelDoubt,
			},
			{
				ID:      StepRSFeelDoubt,
				Expects: models.ResponseDescription,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					doubt := v.Remembered(models.KeyDoubt, in)
					return Render(fmt.Sprintf("Feel the doubt %s... what does it feel like?", quote(doubt)),
						SetOnce(models.KeyDoubt, in.Trimmed()))
				},
				Next: StepRSDoubtFeel,
			},
			{
				ID:      StepRSDoubtFeel,
				Expects: models.ResponseFeeling,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					return Render(feelWhatHappens(v.Remembered(models.KeyDoubtFeeling, in)), SetOnce(models.KeyDoubtFeeling, in.Trimmed()))
				},
				Next: StepRSDoubtCheck,
			},
			{
				ID:      StepRSDoubtAgain,
				Expects: models.ResponseNone,
				Respond: func(v View, in Input) Result {
					return Render(fmt.Sprintf("Feel the doubt %s again... what does it feel like now?", quote(v.Get(models.KeyDoubt))))
				},
				Next: StepRSDoubtFeel,
			},
			{
				ID:      StepRSDoubtCheck,
				Expects: models.ResponseFeeling,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					return Render(fmt.Sprintf("Can you still feel the doubt %s?", quote(v.Get(models.KeyDoubt))))
				},
				Next: StepRSDoubtGate,
			},
			{
				ID:      StepRSDoubtGate,
				Expects: models.ResponseYesNo,
				Rules:   []ValidationRule{YesNo(msgYesNo)},
				Respond: func(v View, in Input) Result {
					if Affirmative(in.Text) && canLoop(v, models.KeyCycles, MaxCycles) {
						return JumpTo(StepRSDoubtAgain, Clear(models.KeyDoubtFeeling), Incr(models.KeyCycles))
					}
					return JumpTo(StepRSCertainty,
						Clear(models.KeyDoubt), Clear(models.KeyDoubtFeeling), Clear(models.KeyCycles), Incr(models.KeyRounds))
				},
			},
		},
	}
}
