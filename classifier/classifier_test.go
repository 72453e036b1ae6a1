package classifier

import (
	"context"
	"sync"
	"testing"

	"github.com/mohitkumar/chatflow/flow"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence/memory"
	"github.com/stretchr/testify/require"
)

func loanFlow(t *testing.T) *flow.Flow {
	fl, err := flow.Convert(&model.FlowDefinition{
		Name:      "loan",
		Version:   1,
		EntryStep: "ASK_INCOME",
		Steps: []model.StepDef{
			{Id: "ASK_INCOME", Kind: model.STEP_KIND_QUESTION, Template: "Income?", Expects: &model.ExpectDef{
				Type:        model.EXPECT_NUMERIC_STRING,
				Variable:    "loan_monthly_income",
				ReentryFlag: "answer_written",
			}},
			{Id: "FORM", Kind: model.STEP_KIND_WAIT},
		},
	}, nil, 0)
	require.NoError(t, err)
	return fl
}

func reentry(flag string) *model.InboundEvent {
	return &model.InboundEvent{
		ExternalId: "r-" + flag,
		ContactId:  "c1",
		Kind:       model.EVENT_INTERNAL_REENTER,
		Payload:    map[string]any{model.PAYLOAD_FLAG: flag},
	}
}

func TestResolve(t *testing.T) {
	fl := loanFlow(t)
	for scenario, fn := range map[string]func(t *testing.T, fc *model.FlowContext){
		"external reply is fresh input": func(t *testing.T, fc *model.FlowContext) {
			event := &model.InboundEvent{ExternalId: "w1", ContactId: "c1", Kind: model.EVENT_EXTERNAL_REPLY}
			require.Equal(t, model.CLASS_FRESH_INPUT, Resolve(event, fc, fl))
			timeout := model.NewTimeoutEvent(model.TimeoutJob{ContactId: "c1", InstanceId: "i1", StepId: "ASK_INCOME"})
			require.Equal(t, model.CLASS_FRESH_INPUT, Resolve(timeout, fc, fl))
		},
		"matching flag that is set": func(t *testing.T, fc *model.FlowContext) {
			fc.SetFlag("answer_written")
			require.Equal(t, model.CLASS_ALREADY_CONSUMED_REENTRY, Resolve(reentry("answer_written"), fc, fl))
		},
		"matching flag that is not set": func(t *testing.T, fc *model.FlowContext) {
			require.Equal(t, model.CLASS_ORDINARY_REENTRY, Resolve(reentry("answer_written"), fc, fl))
		},
		"flag of another step": func(t *testing.T, fc *model.FlowContext) {
			fc.SetFlag("FORM_received")
			require.Equal(t, model.CLASS_ORDINARY_REENTRY, Resolve(reentry("FORM_received"), fc, fl))
		},
		"default flag name": func(t *testing.T, fc *model.FlowContext) {
			fc.MoveTo("FORM")
			fc.SetFlag("FORM_received")
			require.Equal(t, model.CLASS_ALREADY_CONSUMED_REENTRY, Resolve(reentry("FORM_received"), fc, fl))
		},
		"stale correlation hint": func(t *testing.T, fc *model.FlowContext) {
			fc.SetFlag("answer_written")
			event := reentry("answer_written")
			event.CorrelationHint = "old-instance:ASK_INCOME"
			require.Equal(t, model.CLASS_ORDINARY_REENTRY, Resolve(event, fc, fl))
			event.CorrelationHint = fc.CorrelationHint()
			require.Equal(t, model.CLASS_ALREADY_CONSUMED_REENTRY, Resolve(event, fc, fl))
		},
		"reentry without flag": func(t *testing.T, fc *model.FlowContext) {
			event := reentry("")
			event.Payload = nil
			require.Equal(t, model.CLASS_ORDINARY_REENTRY, Resolve(event, fc, fl))
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, model.NewFlowContext("c1", fl.Definition, "i1", "ASK_INCOME"))
		})
	}
}

func TestClassifyDuplicates(t *testing.T) {
	c := NewClassifier(memory.NewLedger())
	fl := loanFlow(t)
	fc := model.NewFlowContext("c1", fl.Definition, "i1", "ASK_INCOME")
	event := &model.InboundEvent{ExternalId: "wamid-7", ContactId: "c1", Kind: model.EVENT_EXTERNAL_REPLY, Payload: map[string]any{"text": "450"}}

	var wg sync.WaitGroup
	var mu sync.Mutex
	classes := make(map[model.EventClass]int)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, class, err := c.Classify(context.Background(), event, fc, fl)
			require.NoError(t, err)
			mu.Lock()
			classes[class]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, classes[model.CLASS_FRESH_INPUT])
	require.Equal(t, 9, classes[model.CLASS_DUPLICATE])
}
