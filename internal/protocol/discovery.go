package protocol

import (
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// Discovery step ids.
const (
	StepWelcome        models.StepID = "ds_welcome"
	StepReadyGate      models.StepID = "ds_ready_gate"
	StepWaitReady      models.StepID = "ds_wait_ready"
	StepUnderstoodGate models.StepID = "ds_understood_gate"
	StepExplainAgain   models.StepID = "ds_explain_again"
)

// Loop bounds shared by the modalities.
const (
	MaxCycles         = 3
	MaxDiggingRounds  = 3
	MaxBlockageRounds = 8
	MaxDoubtRounds    = 4
)

const (
	msgYesNo      = "Please answer yes or no."
	msgYesNoMaybe = "Please answer yes, no, or maybe."
	msgFewWords   = "Please answer in a few words."

	msgWelcome = "Welcome. This session uses a guided process called Mind Shifting. " +
		"I'll ask you a series of short questions, and there are no right or wrong answers. " +
		"Are you ready to begin?"
	msgExplain = "Some questions will be repeated, and that's part of how the process works. " +
		"Answer each one with the first thing that comes to mind, in just a few words. Does that make sense?"
	msgWaitReady    = "That's fine. Take your time, and say yes when you're ready to begin."
	msgExplainAgain = "There's nothing to prepare. Just notice what comes up when I ask a question, " +
		"and tell me in a few words. Shall we start?"
)

// Discovery is the opening phase: welcome, readiness and a short explanation.
func Discovery() *Phase {
	return &Phase{
		Name:        models.PhaseDiscovery,
		MaxDuration: 5 * time.Minute,
		Entry:       StepWelcome,
		Steps: []*Step{
			{
				ID:      StepWelcome,
				Expects: models.ResponseNone,
				Respond: say(msgWelcome),
				Next:    StepReadyGate,
			},
			{
				ID:      StepReadyGate,
				Expects: models.ResponseYesNo,
				Rules:   []ValidationRule{YesNo(msgYesNo)},
				Respond: func(v View, in Input) Result {
					if Affirmative(in.Text) {
						return Render(msgExplain)
					}
					return JumpTo(StepWaitReady)
				},
				Next: StepUnderstoodGate,
			},
			{
				ID:      StepWaitReady,
				Expects: models.ResponseYesNo,
				Respond: say(msgWaitReady),
				Next:    StepReadyGate,
			},
			{
				ID:      StepUnderstoodGate,
				Expects: models.ResponseYesNo,
				Rules:   []ValidationRule{YesNo(msgYesNo)},
				Respond: func(v View, in Input) Result {
					if Affirmative(in.Text) {
						return RouteTo(models.PhaseWorkTypeSelection)
					}
					return JumpTo(StepExplainAgain)
				},
			},
			{
				ID:      StepExplainAgain,
				Expects: models.ResponseYesNo,
				Respond: say(msgExplainAgain),
				Next:    StepUnderstoodGate,
			},
		},
	}
}

// say renders fixed text.
func say(text string) func(View, Input) Result {
	return func(View, Input) Result {
		return Render(text)
	}
}

// canLoop reports whether a bounded loop counted under key may run again.
func canLoop(v View, key models.MetadataKey, limit int) bool {
	return v.Int(key) < limit
}
