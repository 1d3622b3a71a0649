package protocol

import (
	"fmt"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// Work-Type Selection step ids.
const (
	StepWorkTypeMenu    models.StepID = "wt_entry"
	StepWorkTypeGate    models.StepID = "wt_type_gate"
	StepAskProblem      models.StepID = "wt_ask_problem"
	StepProblem         models.StepID = "wt_problem"
	StepMethodGate      models.StepID = "wt_method_gate"
	StepAskGoal         models.StepID = "wt_ask_goal"
	StepGoal            models.StepID = "wt_goal"
	StepAskExperience   models.StepID = "wt_ask_experience"
	StepExperience      models.StepID = "wt_experience"
	StepRouteToModality models.StepID = "wt_route"
)

const (
	msgWorkTypeMenu = "What would you like to work on today?\n" +
		"1. A problem\n2. A goal\n3. A negative experience"
	msgWorkTypeChoice = "Please choose 1, 2 or 3."
	msgMethodChoice   = "Please choose a method from 1 to 4."
	msgAskProblem     = "Tell me in a few words what the problem is."
	msgAskGoal        = "What is your goal? Say it in a few words."
	msgAskExperience  = "Briefly describe the negative experience you'd like to work on. " +
		"Pick one single event, in a few words."
	msgStatementShort = "Please say a little more, in a few words."
	msgStatementLong  = "Please keep it short, just a few words."

	maxStatementLength = 300
)

// methodMenu asks which of the four problem methods to use.
func methodMenu(problem string) string {
	return fmt.Sprintf("Which method would you like to use to work on %s?\n"+
		"1. Problem Shifting\n2. Identity Shifting\n3. Belief Shifting\n4. Blockage Shifting", quote(problem))
}

func statementRules() []ValidationRule {
	return []ValidationRule{
		MinLength(3, msgStatementShort),
		MaxLength(maxStatementLength, msgStatementLong),
	}
}

// WorkTypeSelection captures what the user works on and fans out to a modality.
func WorkTypeSelection() *Phase {
	return &Phase{
		Name:        models.PhaseWorkTypeSelection,
		MaxDuration: 5 * time.Minute,
		Entry:       StepWorkTypeMenu,
		Steps: []*Step{
			{
				ID:      StepWorkTypeMenu,
				Expects: models.ResponseNone,
				Respond: say(msgWorkTypeMenu),
				Next:    StepWorkTypeGate,
			},
			{
				ID:      StepWorkTypeGate,
				Expects: models.ResponseChoice,
				Rules: []ValidationRule{Choice(func(s string) bool {
					_, ok := ParseWorkType(s)
					return ok
				}, msgWorkTypeChoice)},
				Respond: func(v View, in Input) Result {
					wt, _ := ParseWorkType(in.Text)
					set := Set(models.KeyWorkType, string(wt))
					switch wt {
					case models.WorkTypeGoal:
						return JumpTo(StepAskGoal, set)
					case models.WorkTypeNegativeExperience:
						return JumpTo(StepAskExperience, set)
					default:
						return JumpTo(StepAskProblem, set)
					}
				},
			},
			{
				ID:      StepAskProblem,
				Expects: models.ResponseProblem,
				Respond: say(msgAskProblem),
				Next:    StepProblem,
			},
			{
				ID:      StepProblem,
				Expects: models.ResponseProblem,
				Rules:   statementRules(),
				Triggers: []AITrigger{
					{Condition: models.ConditionEmotionOnly, Action: models.ActionClarify},
					{Condition: models.ConditionProblemAsGoal, Action: models.ActionRedirect},
					{Condition: models.ConditionProblemAsQuestion, Action: models.ActionClarify},
				},
				Respond: func(v View, in Input) Result {
					return Render(methodMenu(in.Trimmed()), Set(models.KeyProblemStatement, in.Trimmed()))
				},
				Next: StepMethodGate,
			},
			{
				ID:      StepMethodGate,
				Expects: models.ResponseChoice,
				Rules: []ValidationRule{Choice(func(s string) bool {
					_, ok := ParseMethod(s)
					return ok
				}, msgMethodChoice)},
				Respond: func(v View, in Input) Result {
					m, _ := ParseMethod(in.Text)
					return JumpTo(StepRouteToModality, Set(models.KeySelectedMethod, string(m)))
				},
			},
			{
				ID:      StepAskGoal,
				Expects: models.ResponseGoal,
				Respond: say(msgAskGoal),
				Next:    StepGoal,
			},
			{
				ID:      StepGoal,
				Expects: models.ResponseGoal,
				Rules:   statementRules(),
				Triggers: []AITrigger{
					{Condition: models.ConditionGoalAsProblem, Action: models.ActionRedirect},
					{Condition: models.ConditionGoalAsQuestion, Action: models.ActionClarify},
					{Condition: models.ConditionGoalDeadline, Action: models.ActionSimplify},
				},
				Respond: func(v View, in Input) Result {
					return JumpTo(StepRouteToModality, Set(models.KeyGoalStatement, in.Trimmed()))
				},
			},
			{
				ID:      StepAskExperience,
				Expects: models.ResponseExperience,
				Respond: say(msgAskExperience),
				Next:    StepExperience,
			},
			{
				ID:      StepExperience,
				Expects: models.ResponseExperience,
				Rules:   statementRules(),
				Triggers: []AITrigger{
					{Condition: models.ConditionMultipleEvents, Action: models.ActionFocus},
				},
				Respond: func(v View, in Input) Result {
					return JumpTo(StepRouteToModality, Set(models.KeyExperienceStatement, in.Trimmed()))
				},
			},
			{
				ID:      StepRouteToModality,
				Expects: models.ResponseNone,
				Respond: func(v View, in Input) Result {
					target, patch, err := SelectModality(v)
					if err != nil {
						return RouteError(err)
					}
					return RouteTo(target, patch...)
				},
			},
		},
	}
}
