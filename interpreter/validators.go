package interpreter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mohitkumar/chatflow/flow"
	"github.com/mohitkumar/chatflow/model"
)

// Validator checks a raw answer for a step and returns the value to store.
type Validator func(step *flow.Step, answer any) (any, error)

// Validators is an immutable table of answer validators keyed by expects type.
type Validators struct {
	table map[model.ExpectType]Validator
}

func NewValidators() *Validators {
	return &Validators{table: map[model.ExpectType]Validator{
		model.EXPECT_ANY:              validateAny,
		model.EXPECT_NON_EMPTY_STRING: validateNonEmptyString,
		model.EXPECT_NUMERIC_STRING:   validateNumericString,
		model.EXPECT_NUMBER:           validateNumber,
		model.EXPECT_CHOICE:           validateChoice,
		model.EXPECT_REGEX:            validateRegex,
		model.EXPECT_SCHEMA:           validateSchema,
	}}
}

// With returns a copy of v where expectType is checked by validator.
func (v *Validators) With(expectType model.ExpectType, validator Validator) *Validators {
	table := make(map[model.ExpectType]Validator, len(v.table)+1)
	for k, fn := range v.table {
		table[k] = fn
	}
	table[expectType] = validator
	return &Validators{table: table}
}

func (v *Validators) Validate(step *flow.Step, answer any) (any, error) {
	expectType := step.Expects.Type
	if expectType == "" {
		expectType = model.EXPECT_ANY
	}
	validator, ok := v.table[expectType]
	if !ok {
		return nil, fmt.Errorf("no validator for %s", expectType)
	}
	return validator(step, answer)
}

func answerText(answer any) (string, bool) {
	switch a := answer.(type) {
	case string:
		return strings.TrimSpace(a), true
	case float64:
		return strconv.FormatFloat(a, 'f', -1, 64), true
	case int:
		return strconv.Itoa(a), true
	case int64:
		return strconv.FormatInt(a, 10), true
	}
	return "", false
}

func validateAny(step *flow.Step, answer any) (any, error) {
	if answer == nil {
		return nil, fmt.Errorf("answer is empty")
	}
	return answer, nil
}

func validateNonEmptyString(step *flow.Step, answer any) (any, error) {
	text, ok := answer.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("answer must be a non empty text")
	}
	return strings.TrimSpace(text), nil
}

func validateNumericString(step *flow.Step, answer any) (any, error) {
	text, ok := answerText(answer)
	if !ok || text == "" {
		return nil, fmt.Errorf("answer must be a number")
	}
	if _, err := strconv.ParseFloat(text, 64); err != nil {
		return nil, fmt.Errorf("answer %q is not numeric", text)
	}
	return text, nil
}

func validateNumber(step *flow.Step, answer any) (any, error) {
	text, ok := answerText(answer)
	if !ok {
		return nil, fmt.Errorf("answer must be a number")
	}
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("answer %q is not a number", text)
	}
	return n, nil
}

// validateChoice accepts a choice by text, ignoring case, or by its 1-based position.
func validateChoice(step *flow.Step, answer any) (any, error) {
	text, ok := answerText(answer)
	if !ok || text == "" {
		return nil, fmt.Errorf("answer must be one of %v", step.Expects.Choices)
	}
	for _, choice := range step.Expects.Choices {
		if strings.EqualFold(choice, text) {
			return choice, nil
		}
	}
	if idx, err := strconv.Atoi(text); err == nil && idx >= 1 && idx <= len(step.Expects.Choices) {
		return step.Expects.Choices[idx-1], nil
	}
	return nil, fmt.Errorf("answer %q must be one of %v", text, step.Expects.Choices)
}

func validateRegex(step *flow.Step, answer any) (any, error) {
	text, ok := answerText(answer)
	if !ok || step.Pattern == nil || !step.Pattern.MatchString(text) {
		return nil, fmt.Errorf("answer does not match %s", step.Expects.Pattern)
	}
	return text, nil
}

func validateSchema(step *flow.Step, answer any) (any, error) {
	value := answer
	if text, ok := answer.(string); ok {
		if err := json.Unmarshal([]byte(text), &value); err != nil {
			return nil, fmt.Errorf("answer is not a json document: %w", err)
		}
	}
	if err := step.ValidateValue(value); err != nil {
		return nil, err
	}
	return value, nil
}
