package protocol

import (
	"fmt"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// Integration step ids.
const (
	StepINEntry      models.StepID = "in_entry"
	StepINDifference models.StepID = "in_difference"
	StepINNotice     models.StepID = "in_notice"
	StepINClose      models.StepID = "in_close"
)

const msgClosing = "Thank you for doing this work today. Notice how things feel over the next few days. " +
	"You can start a new session whenever you'd like to work on something else."

// Integration reflects on the change and closes the session.
func Integration() *Phase {
	return &Phase{
		Name:        models.PhaseIntegration,
		MaxDuration: 10 * time.Minute,
		Entry:       StepINEntry,
		Requires:    requireSubject,
		Steps: []*Step{
			{
				ID:      StepINEntry,
				Expects: models.ResponseNone,
				Respond: func(v View, in Input) Result {
					return Render(fmt.Sprintf("Think about %s now. What feels different about it?", quote(Subject(v))))
				},
				Next: StepINDifference,
			},
			{
				ID:      StepINDifference,
				Expects: models.ResponseDescription,
				Rules:   []ValidationRule{MinLength(1, msgFewWords)},
				Respond: say("What will you notice is different over the next few days?"),
				Next:    StepINNotice,
			},
			{
				ID:      StepINNotice,
				Expects: models.ResponseDescription,
				Rules:   []ValidationRule{MinLength(1, msgFewWords)},
				Respond: say("Is there anything you'd like to say before we finish?"),
				Next:    StepINClose,
			},
			{
				ID:      StepINClose,
				Expects: models.ResponseOpenText,
				Respond: func(v View, in Input) Result {
					if n := v.Int(models.KeyProblemsCleared); n > 1 {
						return Render(fmt.Sprintf("You cleared %d problems today. %s", n, msgClosing))
					}
					return Render(msgClosing)
				},
			},
		},
	}
}
