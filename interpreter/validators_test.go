package interpreter

import (
	"regexp"
	"testing"

	"github.com/mohitkumar/chatflow/flow"
	"github.com/mohitkumar/chatflow/model"
	"github.com/stretchr/testify/require"
)

func TestValidators(t *testing.T) {
	v := NewValidators()
	step := func(expects model.ExpectDef) *flow.Step {
		s := &flow.Step{StepDef: model.StepDef{Id: "Q", Kind: model.STEP_KIND_QUESTION, Expects: &expects}}
		if expects.Pattern != "" {
			s.Pattern = regexp.MustCompile(expects.Pattern)
		}
		return s
	}
	for scenario, tc := range map[string]struct {
		expects model.ExpectDef
		answer  any
		want    any
		invalid bool
	}{
		"any accepts payload":          {expects: model.ExpectDef{Type: model.EXPECT_ANY}, answer: "x", want: "x"},
		"non empty string trims":       {expects: model.ExpectDef{Type: model.EXPECT_NON_EMPTY_STRING}, answer: " Jane ", want: "Jane"},
		"non empty string rejects":     {expects: model.ExpectDef{Type: model.EXPECT_NON_EMPTY_STRING}, answer: "  ", invalid: true},
		"numeric string keeps text":    {expects: model.ExpectDef{Type: model.EXPECT_NUMERIC_STRING}, answer: "450", want: "450"},
		"numeric string rejects words": {expects: model.ExpectDef{Type: model.EXPECT_NUMERIC_STRING}, answer: "lots", invalid: true},
		"number parses":                {expects: model.ExpectDef{Type: model.EXPECT_NUMBER}, answer: "12.5", want: 12.5},
		"choice by text":               {expects: model.ExpectDef{Type: model.EXPECT_CHOICE, Choices: []string{"Yes", "No"}}, answer: "yes", want: "Yes"},
		"choice by position":           {expects: model.ExpectDef{Type: model.EXPECT_CHOICE, Choices: []string{"Yes", "No"}}, answer: "2", want: "No"},
		"choice rejects":               {expects: model.ExpectDef{Type: model.EXPECT_CHOICE, Choices: []string{"Yes", "No"}}, answer: "maybe", invalid: true},
		"regex matches":                {expects: model.ExpectDef{Type: model.EXPECT_REGEX, Pattern: `^\d{6}$`}, answer: "411001", want: "411001"},
		"regex rejects":                {expects: model.ExpectDef{Type: model.EXPECT_REGEX, Pattern: `^\d{6}$`}, answer: "4110", invalid: true},
		"empty type means any":         {expects: model.ExpectDef{}, answer: 3.0, want: 3.0},
	} {
		t.Run(scenario, func(t *testing.T) {
			got, err := v.Validate(step(tc.expects), tc.answer)
			if tc.invalid {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
