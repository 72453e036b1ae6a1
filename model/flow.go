package model

type StepKind string

const STEP_KIND_SEND StepKind = "send"
const STEP_KIND_QUESTION StepKind = "question"
const STEP_KIND_WAIT StepKind = "wait_for_response"
const STEP_KIND_ACTION StepKind = "action"

type ExpectType string

const EXPECT_ANY ExpectType = "any"
const EXPECT_NON_EMPTY_STRING ExpectType = "non_empty_string"
const EXPECT_NUMERIC_STRING ExpectType = "numeric_string"
const EXPECT_NUMBER ExpectType = "number"
const EXPECT_CHOICE ExpectType = "choice"
const EXPECT_REGEX ExpectType = "regex"
const EXPECT_SCHEMA ExpectType = "schema"

type ConditionType string

const CONDITION_ALWAYS ConditionType = "always"
const CONDITION_EQUALS ConditionType = "equals"
const CONDITION_NOT_EQUALS ConditionType = "not_equals"
const CONDITION_EXISTS ConditionType = "exists"
const CONDITION_FLAG ConditionType = "flag"
const CONDITION_EXPR ConditionType = "expr"
const CONDITION_CEL ConditionType = "cel"

type FailurePolicy string

const FAILURE_POLICY_HALT FailurePolicy = "halt"
const FAILURE_POLICY_CONTINUE FailurePolicy = "continue"

const ON_TIMEOUT_FALLTHROUGH = "fallthrough"
const ON_TIMEOUT_REPROMPT = "reprompt"

type FlowDefinition struct {
	Name        string          `json:"name" yaml:"name"`
	Version     int             `json:"version" yaml:"version"`
	EntryStep   string          `json:"entryStep" yaml:"entryStep"`
	MaxHops     int             `json:"maxHops,omitempty" yaml:"maxHops,omitempty"`
	Steps       []StepDef       `json:"steps" yaml:"steps"`
	Transitions []TransitionDef `json:"transitions" yaml:"transitions"`
}

type StepDef struct {
	Id             string         `json:"id" yaml:"id"`
	Kind           StepKind       `json:"kind" yaml:"kind"`
	Template       string         `json:"template,omitempty" yaml:"template,omitempty"`
	Expects        *ExpectDef     `json:"expects,omitempty" yaml:"expects,omitempty"`
	Action         string         `json:"action,omitempty" yaml:"action,omitempty"`
	Params         map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	OnFailure      FailurePolicy  `json:"onFailure,omitempty" yaml:"onFailure,omitempty"`
	Terminal       bool           `json:"terminal,omitempty" yaml:"terminal,omitempty"`
	TimeoutSeconds int            `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
	Checkpoint     bool           `json:"checkpoint,omitempty" yaml:"checkpoint,omitempty"`
}

type ExpectDef struct {
	Type          ExpectType     `json:"type" yaml:"type"`
	Variable      string         `json:"variable" yaml:"variable"`
	Choices       []string       `json:"choices,omitempty" yaml:"choices,omitempty"`
	Pattern       string         `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Schema        map[string]any `json:"schema,omitempty" yaml:"schema,omitempty"`
	ReentryFlag   string         `json:"reentryFlag,omitempty" yaml:"reentryFlag,omitempty"`
	RetryTemplate string         `json:"retryTemplate,omitempty" yaml:"retryTemplate,omitempty"`
	OnTimeout     string         `json:"onTimeout,omitempty" yaml:"onTimeout,omitempty"`
	MaxAttempts   int            `json:"maxAttempts,omitempty" yaml:"maxAttempts,omitempty"`
}

type TransitionDef struct {
	From      string       `json:"from" yaml:"from"`
	To        string       `json:"to" yaml:"to"`
	Priority  int          `json:"priority" yaml:"priority"`
	Condition ConditionDef `json:"condition" yaml:"condition"`
}

type ConditionDef struct {
	Type       ConditionType `json:"type" yaml:"type"`
	Variable   string        `json:"variable,omitempty" yaml:"variable,omitempty"`
	Value      any           `json:"value,omitempty" yaml:"value,omitempty"`
	Flag       string        `json:"flag,omitempty" yaml:"flag,omitempty"`
	Expression string        `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// ReentryFlagFor returns the context flag that marks the answer of step as already
// written by an out-of-band handler.
func ReentryFlagFor(step StepDef) string {
	if step.Expects != nil && step.Expects.ReentryFlag != "" {
		return step.Expects.ReentryFlag
	}
	return step.Id + "_received"
}
