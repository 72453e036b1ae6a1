package flow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/transition"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const DEFAULT_MAX_HOPS = 25

// ActionLookup reports whether an action name can be invoked.
type ActionLookup interface {
	Has(name string) bool
}

// Step is a step definition with its validators compiled.
type Step struct {
	model.StepDef
	Pattern *regexp.Regexp
	Schema  *jsonschema.Schema
}

// Flow is the compiled, read-only form of a flow definition. It is shared across
// goroutines without locking.
type Flow struct {
	Definition *model.FlowDefinition
	MaxHops    int
	steps      map[string]*Step
	rules      map[string][]transition.Rule
}

func (f *Flow) Name() string {
	return f.Definition.Name
}

func (f *Flow) Version() int {
	return f.Definition.Version
}

func (f *Flow) Step(id string) (*Step, bool) {
	s, ok := f.steps[id]
	return s, ok
}

func (f *Flow) Entry() *Step {
	return f.steps[f.Definition.EntryStep]
}

// Rules returns the outgoing transitions of a step in priority order.
func (f *Flow) Rules(from string) []transition.Rule {
	return f.rules[from]
}

// Convert validates def and compiles it. actions may be nil to skip the action
// name check.
func Convert(def *model.FlowDefinition, actions ActionLookup, defaultMaxHops int) (*Flow, error) {
	if err := Validate(def, actions); err != nil {
		return nil, err
	}
	maxHops := def.MaxHops
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}
	if maxHops <= 0 {
		maxHops = DEFAULT_MAX_HOPS
	}
	fl := &Flow{
		Definition: def,
		MaxHops:    maxHops,
		steps:      make(map[string]*Step, len(def.Steps)),
		rules:      make(map[string][]transition.Rule),
	}
	for _, stepDef := range def.Steps {
		step := &Step{StepDef: stepDef}
		if stepDef.Expects != nil {
			if stepDef.Expects.Pattern != "" {
				pattern, err := regexp.Compile(stepDef.Expects.Pattern)
				if err != nil {
					return nil, fmt.Errorf("step %s, invalid pattern: %w", stepDef.Id, err)
				}
				step.Pattern = pattern
			}
			if len(stepDef.Expects.Schema) > 0 {
				schema, err := compileSchema(def.Name, stepDef.Id, stepDef.Expects.Schema)
				if err != nil {
					return nil, fmt.Errorf("step %s, invalid schema: %w", stepDef.Id, err)
				}
				step.Schema = schema
			}
		}
		fl.steps[stepDef.Id] = step
	}
	for _, td := range def.Transitions {
		rule, err := transition.Compile(td)
		if err != nil {
			return nil, err
		}
		fl.rules[td.From] = append(fl.rules[td.From], rule)
	}
	for from := range fl.rules {
		transition.Sort(fl.rules[from])
	}
	return fl, nil
}

func Validate(def *model.FlowDefinition, actions ActionLookup) error {
	if def == nil {
		return fmt.Errorf("flow definition can not be nil")
	}
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("flow name can not be empty")
	}
	if def.Version <= 0 {
		return fmt.Errorf("flow %s, version must be positive", def.Name)
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("flow %s has no steps", def.Name)
	}
	steps := make(map[string]model.StepDef, len(def.Steps))
	for _, step := range def.Steps {
		if step.Id == "" {
			return fmt.Errorf("flow %s, step id can not be empty", def.Name)
		}
		if _, ok := steps[step.Id]; ok {
			return fmt.Errorf("step id %s is duplicate", step.Id)
		}
		steps[step.Id] = step
		if err := validateStep(step, actions); err != nil {
			return err
		}
	}
	if _, ok := steps[def.EntryStep]; !ok {
		return fmt.Errorf("no step with entry step id %s in flow %s", def.EntryStep, def.Name)
	}
	priorities := make(map[string]map[int]bool)
	for _, td := range def.Transitions {
		from, ok := steps[td.From]
		if !ok {
			return fmt.Errorf("transition from unknown step %s", td.From)
		}
		if _, ok := steps[td.To]; !ok {
			return fmt.Errorf("transition %s -> %s targets unknown step", td.From, td.To)
		}
		if from.Terminal {
			return fmt.Errorf("terminal step %s can not have transitions", td.From)
		}
		if priorities[td.From] == nil {
			priorities[td.From] = make(map[int]bool)
		}
		if priorities[td.From][td.Priority] {
			return fmt.Errorf("step %s has two transitions with priority %d", td.From, td.Priority)
		}
		priorities[td.From][td.Priority] = true
		if _, err := transition.CompileCondition(td.Condition); err != nil {
			return fmt.Errorf("transition %s -> %s: %w", td.From, td.To, err)
		}
	}
	return nil
}

func validateStep(step model.StepDef, actions ActionLookup) error {
	switch step.Kind {
	case model.STEP_KIND_SEND:
		if step.Template == "" {
			return fmt.Errorf("send step %s needs a template", step.Id)
		}
	case model.STEP_KIND_QUESTION:
		if step.Template == "" {
			return fmt.Errorf("question step %s needs a template", step.Id)
		}
		if step.Expects == nil || step.Expects.Variable == "" {
			return fmt.Errorf("question step %s needs expects with a variable", step.Id)
		}
		if err := validateExpects(step); err != nil {
			return err
		}
	case model.STEP_KIND_WAIT:
		if step.Expects != nil {
			if err := validateExpects(step); err != nil {
				return err
			}
		}
	case model.STEP_KIND_ACTION:
		if step.Action == "" {
			return fmt.Errorf("action step %s needs an action", step.Id)
		}
		if actions != nil && !actions.Has(step.Action) {
			return fmt.Errorf("action step %s uses unknown action %s", step.Id, step.Action)
		}
		switch step.OnFailure {
		case "", model.FAILURE_POLICY_HALT, model.FAILURE_POLICY_CONTINUE:
		default:
			return fmt.Errorf("action step %s has unknown failure policy %s", step.Id, step.OnFailure)
		}
	default:
		return fmt.Errorf("step %s has unknown kind %s", step.Id, step.Kind)
	}
	if step.TimeoutSeconds < 0 {
		return fmt.Errorf("step %s, timeout can not be negative", step.Id)
	}
	return nil
}

func validateExpects(step model.StepDef) error {
	expects := step.Expects
	switch expects.Type {
	case model.EXPECT_ANY, model.EXPECT_NON_EMPTY_STRING, model.EXPECT_NUMERIC_STRING, model.EXPECT_NUMBER, "":
	case model.EXPECT_CHOICE:
		if len(expects.Choices) == 0 {
			return fmt.Errorf("step %s, choice expects needs choices", step.Id)
		}
	case model.EXPECT_REGEX:
		if expects.Pattern == "" {
			return fmt.Errorf("step %s, regex expects needs a pattern", step.Id)
		}
	case model.EXPECT_SCHEMA:
		if len(expects.Schema) == 0 {
			return fmt.Errorf("step %s, schema expects needs a schema", step.Id)
		}
	default:
		return fmt.Errorf("step %s has unknown expects type %s", step.Id, expects.Type)
	}
	switch expects.OnTimeout {
	case "", model.ON_TIMEOUT_FALLTHROUGH, model.ON_TIMEOUT_REPROMPT:
	default:
		return fmt.Errorf("step %s has unknown timeout behaviour %s", step.Id, expects.OnTimeout)
	}
	if expects.MaxAttempts < 0 {
		return fmt.Errorf("step %s, max attempts can not be negative", step.Id)
	}
	return nil
}

func compileSchema(flowName string, stepId string, schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	url := fmt.Sprintf("chatflow://%s/%s.json", flowName, stepId)
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(url)
}

// ValidateValue checks v against the step's schema. v is round tripped through
// JSON so numbers reach the validator as json.Number.
func (s *Step) ValidateValue(v any) error {
	if s.Schema == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return err
	}
	return s.Schema.Validate(doc)
}
