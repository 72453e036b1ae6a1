package flow

import (
	"testing"

	"github.com/mohitkumar/chatflow/model"
	"github.com/stretchr/testify/require"
)

type actionSet map[string]bool

func (a actionSet) Has(name string) bool {
	return a[name]
}

func onboarding() *model.FlowDefinition {
	return &model.FlowDefinition{
		Name:      "onboarding",
		Version:   1,
		EntryStep: "WELCOME",
		Steps: []model.StepDef{
			{Id: "WELCOME", Kind: model.STEP_KIND_SEND, Template: "Welcome!"},
			{Id: "ASK_NAME", Kind: model.STEP_KIND_QUESTION, Template: "Your name?", Expects: &model.ExpectDef{Type: model.EXPECT_NON_EMPTY_STRING, Variable: "name"}},
			{Id: "LOOKUP", Kind: model.STEP_KIND_ACTION, Action: "crm"},
			{Id: "DONE", Kind: model.STEP_KIND_SEND, Template: "Bye {{name}}", Terminal: true},
		},
		Transitions: []model.TransitionDef{
			{From: "WELCOME", To: "ASK_NAME", Priority: 1, Condition: model.ConditionDef{Type: model.CONDITION_ALWAYS}},
			{From: "ASK_NAME", To: "DONE", Priority: 2, Condition: model.ConditionDef{Type: model.CONDITION_ALWAYS}},
			{From: "ASK_NAME", To: "LOOKUP", Priority: 1, Condition: model.ConditionDef{Type: model.CONDITION_FLAG, Flag: "name_received"}},
			{From: "LOOKUP", To: "DONE", Priority: 1, Condition: model.ConditionDef{Type: model.CONDITION_ALWAYS}},
		},
	}
}

func TestConvert(t *testing.T) {
	fl, err := Convert(onboarding(), actionSet{"crm": true}, 0)
	require.NoError(t, err)
	require.Equal(t, "WELCOME", fl.Entry().Id)
	require.Equal(t, DEFAULT_MAX_HOPS, fl.MaxHops)

	rules := fl.Rules("ASK_NAME")
	require.Len(t, rules, 2)
	require.Equal(t, "LOOKUP", rules[0].To)
	require.Equal(t, "DONE", rules[1].To)
	require.Empty(t, fl.Rules("DONE"))

	fl, err = Convert(onboarding(), nil, 7)
	require.NoError(t, err)
	require.Equal(t, 7, fl.MaxHops)
}

func TestSchemaStep(t *testing.T) {
	def := &model.FlowDefinition{
		Name:      "form",
		Version:   1,
		EntryStep: "ADDRESS",
		Steps: []model.StepDef{
			{Id: "ADDRESS", Kind: model.STEP_KIND_WAIT, Expects: &model.ExpectDef{
				Type:     model.EXPECT_SCHEMA,
				Variable: "address",
				Schema: map[string]any{
					"type":     "object",
					"required": []any{"city", "pin"},
					"properties": map[string]any{
						"city": map[string]any{"type": "string"},
						"pin":  map[string]any{"type": "integer"},
					},
				},
			}},
		},
	}
	fl, err := Convert(def, nil, 0)
	require.NoError(t, err)
	step, ok := fl.Step("ADDRESS")
	require.True(t, ok)
	require.NoError(t, step.ValidateValue(map[string]any{"city": "Pune", "pin": 411001}))
	require.Error(t, step.ValidateValue(map[string]any{"city": "Pune"}))
}

func TestValidate(t *testing.T) {
	for scenario, mutate := range map[string]func(def *model.FlowDefinition){
		"duplicate step id": func(def *model.FlowDefinition) {
			def.Steps = append(def.Steps, model.StepDef{Id: "WELCOME", Kind: model.STEP_KIND_SEND, Template: "x"})
		},
		"unknown entry step": func(def *model.FlowDefinition) {
			def.EntryStep = "START"
		},
		"transition to unknown step": func(def *model.FlowDefinition) {
			def.Transitions[0].To = "NOWHERE"
		},
		"duplicate priority": func(def *model.FlowDefinition) {
			def.Transitions[1].Priority = 1
		},
		"terminal step with transition": func(def *model.FlowDefinition) {
			def.Transitions = append(def.Transitions, model.TransitionDef{From: "DONE", To: "WELCOME", Priority: 1})
		},
		"question without variable": func(def *model.FlowDefinition) {
			def.Steps[1].Expects.Variable = ""
		},
		"unknown action": func(def *model.FlowDefinition) {
			def.Steps[2].Action = "billing"
		},
		"unknown step kind": func(def *model.FlowDefinition) {
			def.Steps[0].Kind = "carousel"
		},
		"broken condition": func(def *model.FlowDefinition) {
			def.Transitions[0].Condition = model.ConditionDef{Type: model.CONDITION_EXPR, Expression: "a ==="}
		},
		"missing version": func(def *model.FlowDefinition) {
			def.Version = 0
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			def := onboarding()
			mutate(def)
			require.Error(t, Validate(def, actionSet{"crm": true}))
		})
	}
}
