package protocol

import (
	"fmt"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// Digging Deeper step ids.
const (
	StepDDEntry        models.StepID = "dd_entry"
	StepDDGate         models.StepID = "dd_gate"
	StepDDScenarioGate models.StepID = "dd_scenario_gate"
	StepDDAnythingGate models.StepID = "dd_anything_gate"
	StepDDAskProblem   models.StepID = "dd_ask_problem"
	StepDDRestate      models.StepID = "dd_restate"
	StepDDMethodGate   models.StepID = "dd_method_gate"
)

// DiggingDeeper looks for what is left of the original problem and sends any
// restated problem back through a method of the user's choice. A "no" at the first
// check ends the loop; "yes" or "maybe" moves on to the future-scenario and
// anything-else checks, either of which can lead to a restated problem.
func DiggingDeeper() *Phase {
	return &Phase{
		Name:        models.PhaseDiggingDeeper,
		MaxDuration: 10 * time.Minute,
		Entry:       StepDDEntry,
		Requires:    requireProblem,
		Steps: []*Step{
			{
				ID:      StepDDEntry,
				Expects: models.ResponseNone,
				Respond: func(v View, in Input) Result {
					return Render(fmt.Sprintf("Think about the problem you started with, %s... does it still feel like a problem?",
						quote(v.Get(models.KeyProblemStatement))))
				},
				Next: StepDDGate,
			},
			{
				ID:      StepDDGate,
				Expects: models.ResponseYesNo,
				Rules:   []ValidationRule{YesNo(msgYesNoMaybe)},
				Respond: func(v View, in Input) Result {
					if !Affirmative(in.Text) || !canLoop(v, models.KeyDiggingRounds, MaxDiggingRounds) {
						return RouteTo(models.PhaseIntegration)
					}
					return Render("Could there be a situation in the future where this might still be a problem for you?")
				},
				Next: StepDDScenarioGate,
			},
			{
				ID:      StepDDScenarioGate,
				Expects: models.ResponseYesNo,
				Rules:   []ValidationRule{YesNo(msgYesNoMaybe)},
				Respond: func(v View, in Input) Result {
					if Affirmative(in.Text) {
						return JumpTo(StepDDAskProblem)
					}
					return Render("Is there anything else about this that is still a problem for you?")
				},
				Next: StepDDAnythingGate,
			},
			{
				ID:      StepDDAnythingGate,
				Expects: models.ResponseYesNo,
				Rules:   []ValidationRule{YesNo(msgYesNoMaybe)},
				Respond: func(v View, in Input) Result {
					if Affirmative(in.Text) {
						return JumpTo(StepDDAskProblem)
					}
					return RouteTo(models.PhaseIntegration)
				},
			},
			{
				ID:      StepDDAskProblem,
				Expects: models.ResponseNone,
				Respond: say("What's the problem now? Say it in a few words."),
				Next:    StepDDRestate,
			},
			{
				ID:      StepDDRestate,
				Expects: models.ResponseProblem,
				Rules:   statementRules(),
				Triggers: []AITrigger{
					{Condition: models.ConditionEmotionOnly, Action: models.ActionClarify},
					{Condition: models.ConditionProblemAsGoal, Action: models.ActionRedirect},
					{Condition: models.ConditionProblemAsQuestion, Action: models.ActionClarify},
					{Condition: models.ConditionBareConfirmation, Action: models.ActionClarify},
				},
				Respond: func(v View, in Input) Result {
					return Render(methodMenu(in.Trimmed()), Set(models.KeyCurrentDiggingProblem, in.Trimmed()))
				},
				Next: StepDDMethodGate,
			},
			{
				ID:      StepDDMethodGate,
				Expects: models.ResponseChoice,
				Rules: []ValidationRule{Choice(func(s string) bool {
					_, ok := ParseMethod(s)
					return ok
				}, msgMethodChoice)},
				Respond: func(v View, in Input) Result {
					m, _ := ParseMethod(in.Text)
					return RouteTo(m.Phase(), Set(models.KeySelectedMethod, string(m)), Incr(models.KeyDiggingRounds))
				},
			},
		},
	}
}
