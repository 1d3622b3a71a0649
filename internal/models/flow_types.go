// Package models defines dialogue type definitions to avoid circular imports.
package models

// PhaseName identifies a Phase of the scripted dialogue.
type PhaseName string

// StepID identifies a Step. IDs are unique across the whole phase library.
type StepID string

// MetadataKey is a key in the session metadata bag.
type MetadataKey string

// ResponseType tags the shape of answer a Step expects.
type ResponseType string

// WorkType is what the user chose to work on.
type WorkType string

// Method is the modality selected for a problem.
type Method string

// AssistCondition names an assistance catalogue category a Step can trigger.
type AssistCondition string

// AssistAction is what the assistance layer does when a condition matches.
type AssistAction string

// Phase constants.
const (
	PhaseDiscovery         PhaseName = "discovery"
	PhaseWorkTypeSelection PhaseName = "work_type_selection"
	PhaseProblemShifting   PhaseName = "problem_shifting"
	PhaseIdentityShifting  PhaseName = "identity_shifting"
	PhaseBeliefShifting    PhaseName = "belief_shifting"
	PhaseBlockageShifting  PhaseName = "blockage_shifting"
	PhaseRealityShifting   PhaseName = "reality_shifting"
	PhaseTraumaShifting    PhaseName = "trauma_shifting"
	PhaseDiggingDeeper     PhaseName = "digging_deeper"
	PhaseIntegration       PhaseName = "integration"
)

// Expected response types.
const (
	ResponseNone        ResponseType = "none"
	ResponseOpenText    ResponseType = "open_text"
	ResponseYesNo       ResponseType = "yes_no"
	ResponseChoice      ResponseType = "choice"
	ResponseDescription ResponseType = "free_description"
	ResponseFeeling     ResponseType = "feeling"
	ResponseProblem     ResponseType = "problem_statement"
	ResponseGoal        ResponseType = "goal_statement"
	ResponseExperience  ResponseType = "experience_statement"
	ResponseIdentity    ResponseType = "identity"
	ResponseBelief      ResponseType = "belief"
	ResponseRating      ResponseType = "rating"
)

// Work types.
const (
	WorkTypeProblem            WorkType = "problem"
	WorkTypeGoal               WorkType = "goal"
	WorkTypeNegativeExperience WorkType = "negative_experience"
)

// Methods. Values match the phase names they route to.
const (
	MethodProblemShifting  Method = "problem_shifting"
	MethodIdentityShifting Method = "identity_shifting"
	MethodBeliefShifting   Method = "belief_shifting"
	MethodBlockageShifting Method = "blockage_shifting"
	MethodRealityShifting  Method = "reality_shifting"
	MethodTraumaShifting   Method = "trauma_shifting"
)

// Metadata keys owned by the orchestration phases.
const (
	KeyWorkType              MetadataKey = "workType"
	KeySelectedMethod        MetadataKey = "selectedMethod"
	KeyProblemStatement      MetadataKey = "problemStatement"
	KeyGoalStatement         MetadataKey = "goalStatement"
	KeyGoalDeadline          MetadataKey = "goalDeadline"
	KeyGoalWithDeadline      MetadataKey = "goalWithDeadline"
	KeyExperienceStatement   MetadataKey = "experienceStatement"
	KeyCurrentDiggingProblem MetadataKey = "currentDiggingProblem"
	KeyDiggingRounds         MetadataKey = "diggingRounds"
	KeyProblemsCleared       MetadataKey = "problemsCleared"
)

// Metadata keys scoped to a single pass through a modality.
const (
	KeyCycles         MetadataKey = "cycles"
	KeyRounds         MetadataKey = "rounds"
	KeyFeeling        MetadataKey = "feeling"
	KeyNeed           MetadataKey = "need"
	KeyDesiredFeeling MetadataKey = "desiredFeeling"
	KeyIdentity       MetadataKey = "identity"
	KeyNewIdentity    MetadataKey = "newIdentity"
	KeyBelief         MetadataKey = "belief"
	KeyNewBelief      MetadataKey = "newBelief"
	KeyBlockage       MetadataKey = "blockage"
	KeyDoubt          MetadataKey = "doubt"
	KeyDoubtFeeling   MetadataKey = "doubtFeeling"
)

// Assistance conditions. Each one is a category of the assistance catalogue.
const (
	ConditionProblemAsGoal     AssistCondition = "problem_as_goal"
	ConditionProblemAsQuestion AssistCondition = "problem_as_question"
	ConditionMultipleEvents    AssistCondition = "multiple_events"
	ConditionGoalAsProblem     AssistCondition = "goal_as_problem"
	ConditionGoalAsQuestion    AssistCondition = "goal_as_question"
	ConditionEmotionOnly       AssistCondition = "emotion_without_context"
	ConditionBareConfirmation  AssistCondition = "bare_confirmation"
	ConditionGoalDeadline      AssistCondition = "goal_deadline"
	ConditionIdentityWording   AssistCondition = "identity_wording"
	ConditionBeliefWording     AssistCondition = "belief_wording"
)

// Assistance actions.
const (
	ActionClarify  AssistAction = "clarify"
	ActionFocus    AssistAction = "focus"
	ActionSimplify AssistAction = "simplify"
	ActionRedirect AssistAction = "redirect"
	ActionRewrite  AssistAction = "rewrite"
)

// Valid reports whether the work type is one of the known values.
func (w WorkType) Valid() bool {
	switch w {
	case WorkTypeProblem, WorkTypeGoal, WorkTypeNegativeExperience:
		return true
	}
	return false
}

// Phase returns the phase a method routes to.
func (m Method) Phase() PhaseName {
	return PhaseName(m)
}

// ProblemMethod reports whether m is one of the four methods offered for a problem.
func (m Method) ProblemMethod() bool {
	switch m {
	case MethodProblemShifting, MethodIdentityShifting, MethodBeliefShifting, MethodBlockageShifting:
		return true
	}
	return false
}
