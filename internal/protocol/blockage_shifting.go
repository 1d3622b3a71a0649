package protocol

import (
	"fmt"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// Blockage Shifting step ids.
const (
	StepBKEntry models.StepID = "bk_entry"
	StepBKFeel  models.StepID = "bk_feel"
	StepBKCheck models.StepID = "bk_check"
	StepBKGate  models.StepID = "bk_gate"
)

var clearedWords = []string{
	"nothing", "nothing happens", "nothing much", "no problem", "gone", "it's gone", "its gone",
	"it disappeared", "fine", "it's fine", "neutral", "empty", "nothing there", "clear",
}

// blockageCleared reports whether an answer means there is nothing left to feel.
func blockageCleared(input string) bool {
	s := normalize(input)
	for _, w := range clearedWords {
		if s == w {
			return true
		}
	}
	return false
}

// BlockageShifting follows each felt response in turn until nothing is left.
func BlockageShifting() *Phase {
	return &Phase{
		Name:        models.PhaseBlockageShifting,
		MaxDuration: 20 * time.Minute,
		Entry:       StepBKEntry,
		Requires:    requireProblem,
		Scoped:      []models.MetadataKey{models.KeyCycles, models.KeyRounds, models.KeyBlockage},
		Steps: []*Step{
			{
				ID:      StepBKEntry,
				Expects: models.ResponseNone,
				Respond: func(v View, in Input) Result {
					return Render(fmt.Sprintf("Feel the problem %s... what does it feel like?", quote(CurrentProblem(v))))
				},
				Next: StepBKFeel,
			},
			{
				// bk_feel loops on itself: every answer is the next thing to feel, so the
				// live input is interpolated on purpose.
				ID:      StepBKFeel,
				Expects: models.ResponseFeeling,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					if blockageCleared(in.Text) || !canLoop(v, models.KeyRounds, MaxBlockageRounds) {
						return JumpTo(StepBKCheck)
					}
					return Render(feelWhatHappens(in.Trimmed()), Set(models.KeyBlockage, in.Trimmed()), Incr(models.KeyRounds))
				},
				Next: StepBKFeel,
			},
			{
				ID:      StepBKCheck,
				Expects: models.ResponseYesNo,
				Respond: func(v View, in Input) Result {
					return Render(stillAProblem(CurrentProblem(v)))
				},
				Next: StepBKGate,
			},
			{
				ID:      StepBKGate,
				Expects: models.ResponseYesNo,
				Rules:   []ValidationRule{YesNo(msgYesNo)},
				Respond: func(v View, in Input) Result {
					return closeProblem(v, in, StepBKEntry, Clear(models.KeyBlockage), Clear(models.KeyRounds))
				},
			},
		},
	}
}
