package interpreter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohitkumar/chatflow/action"
	"github.com/mohitkumar/chatflow/analytics"
	"github.com/mohitkumar/chatflow/flow"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/render"
	"github.com/mohitkumar/chatflow/transition"
	"github.com/mohitkumar/chatflow/util"
	"go.uber.org/zap"
)

const FLAG_ACTION_SUCCEEDED = "action_succeeded"
const FLAG_ACTION_FAILED = "action_failed"
const FLAG_ATTEMPTS_EXHAUSTED = "attempts_exhausted"
const FLAG_TIMEOUT_RECEIVED = "timeout_received"

var errActionReportedFailure = errors.New("action reported failure")

// ActionRegistry is the part of the action registry the interpreter needs.
type ActionRegistry interface {
	Get(name string) (action.Handler, bool)
	Policy(name string, stepPolicy model.FailurePolicy) model.FailurePolicy
}

// Trigger is the classified event that starts an interpretation pass.
type Trigger struct {
	Class model.EventClass
	Event *model.InboundEvent
}

type TimeoutRequest struct {
	StepId string
	Seq    int64
	Delay  time.Duration
}

// Result is everything a pass produced. None of it is visible outside until the
// caller commits the context.
type Result struct {
	Instructions []model.OutboundInstruction
	Timeouts     []TimeoutRequest
	Events       []analytics.Event
	Hops         int
	Suspended    bool
	Parked       bool
	Completed    bool
	Checkpoint   bool
	Changed      bool
}

type Interpreter struct {
	actions    ActionRegistry
	validators *Validators
}

func NewInterpreter(actions ActionRegistry, validators *Validators) *Interpreter {
	if validators == nil {
		validators = NewValidators()
	}
	return &Interpreter{
		actions:    actions,
		validators: validators,
	}
}

// pass holds the state of one Run call.
type pass struct {
	ctx     context.Context
	fl      *flow.Flow
	fc      *model.FlowContext
	trigger Trigger
	res     *Result
}

// Run interprets the active step of fc for trigger and keeps advancing until a
// step suspends, the flow completes, a checkpoint is reached or the hop budget
// runs out. fc is modified in place; the caller decides whether to commit it.
// Validation failures never surface as errors.
func (in *Interpreter) Run(ctx context.Context, fl *flow.Flow, fc *model.FlowContext, trigger Trigger) (*Result, error) {
	p := &pass{ctx: ctx, fl: fl, fc: fc, trigger: trigger, res: &Result{}}
	if trigger.Event != nil {
		p.res.Hops = trigger.Event.Hops()
	}
	if fc.State == model.HALTED {
		return p.res, model.ErrFlowHalted
	}

	first := true
	for {
		step, ok := fl.Step(fc.ActiveStep)
		if !ok {
			return p.res, fmt.Errorf("step %s is not part of flow %s version %d", fc.ActiveStep, fl.Name(), fl.Version())
		}
		var (
			advance bool
			err     error
		)
		if first {
			advance, err = in.handleTrigger(p, step)
			first = false
		} else {
			advance, err = in.enter(p, step)
		}
		if err != nil {
			return p.res, err
		}
		if !advance {
			return p.res, nil
		}
		if step.Terminal {
			p.res.Completed = true
			p.res.Changed = true
			p.record(analytics.Event{Type: analytics.FLOW_COMPLETED, StepId: step.Id})
			return p.res, nil
		}
		moved, err := in.evaluate(p, step)
		if err != nil || !moved {
			return p.res, err
		}
		if step.Kind == model.STEP_KIND_ACTION && step.Checkpoint {
			p.res.Checkpoint = true
			return p.res, nil
		}
	}
}

// handleTrigger applies the triggering event to the step the context is parked at.
// It reports whether transitions should be evaluated.
func (in *Interpreter) handleTrigger(p *pass, step *flow.Step) (bool, error) {
	fc := p.fc
	if p.trigger.Class == model.CLASS_ALREADY_CONSUMED_REENTRY {
		return in.consumeReentry(p, step), nil
	}
	if !fc.StepEntered {
		return in.enter(p, step)
	}
	switch step.Kind {
	case model.STEP_KIND_SEND, model.STEP_KIND_ACTION:
		// parked at a dead end
		return true, nil
	case model.STEP_KIND_QUESTION:
		return in.answer(p, step), nil
	case model.STEP_KIND_WAIT:
		if p.isCurrentTimeout(step) {
			return in.timeout(p, step, model.INSTRUCTION_AWAIT_STRUCTURED_REPLY), nil
		}
		p.res.Suspended = true
		return false, nil
	}
	return false, fmt.Errorf("step %s has unknown kind %s", step.Id, step.Kind)
}

// timeout handles the expiry of the current visit of a waiting step. Reprompting
// starts a new visit so timers armed for the old one go stale.
func (in *Interpreter) timeout(p *pass, step *flow.Step, kind model.InstructionKind) bool {
	p.res.Changed = true
	if step.Expects != nil && step.Expects.OnTimeout == model.ON_TIMEOUT_REPROMPT && !in.exhausted(p, step) {
		p.fc.StepSeq++
		p.emit(kind, step.Template)
		p.suspend(step)
		return false
	}
	p.fc.SetFlag(FLAG_TIMEOUT_RECEIVED)
	return true
}

// consumeReentry advances a step whose answer a separate handler already wrote
// into the context. The answer is not validated again.
func (in *Interpreter) consumeReentry(p *pass, step *flow.Step) bool {
	fc := p.fc
	fc.StepEntered = true
	if step.Expects != nil && step.Expects.Variable != "" {
		if _, ok := fc.Variables[step.Expects.Variable]; ok {
			fc.SetFlag(step.Expects.Variable + "_received")
		}
	}
	p.res.Changed = true
	return true
}

// enter runs the on-entry behaviour of a step.
func (in *Interpreter) enter(p *pass, step *flow.Step) (bool, error) {
	fc := p.fc
	fc.StepEntered = true
	p.res.Changed = true
	p.record(analytics.Event{Type: analytics.STEP_ENTERED, StepId: step.Id})
	switch step.Kind {
	case model.STEP_KIND_SEND:
		p.emit(model.INSTRUCTION_SEND, step.Template)
		return true, nil
	case model.STEP_KIND_QUESTION:
		kind := model.INSTRUCTION_SEND
		if step.Expects.Type == model.EXPECT_SCHEMA {
			kind = model.INSTRUCTION_AWAIT_STRUCTURED_REPLY
		}
		p.emit(kind, step.Template)
		p.suspend(step)
		return false, nil
	case model.STEP_KIND_WAIT:
		p.emit(model.INSTRUCTION_AWAIT_STRUCTURED_REPLY, step.Template)
		p.suspend(step)
		return false, nil
	case model.STEP_KIND_ACTION:
		return in.invoke(p, step)
	}
	return false, fmt.Errorf("step %s has unknown kind %s", step.Id, step.Kind)
}

// answer handles input for a question step that is waiting for it.
func (in *Interpreter) answer(p *pass, step *flow.Step) bool {
	fc := p.fc
	event := p.trigger.Event
	if p.trigger.Class != model.CLASS_FRESH_INPUT || event == nil {
		p.res.Suspended = true
		return false
	}
	if event.IsTimeout() {
		if !p.isCurrentTimeout(step) {
			p.res.Suspended = true
			return false
		}
		return in.timeout(p, step, model.INSTRUCTION_SEND)
	}

	p.res.Changed = true
	value, err := in.validators.Validate(step, event.Answer())
	if err == nil {
		fc.SetVariable(step.Expects.Variable, value)
		fc.SetFlag(step.Expects.Variable + "_received")
		return true
	}
	logger.Debug("answer rejected", zap.String("contact", fc.ContactId), zap.String("step", step.Id), zap.String("externalId", event.ExternalId), zap.Error(err))
	if in.exhausted(p, step) {
		return true
	}
	template := step.Expects.RetryTemplate
	if template == "" {
		template = step.Template
	}
	p.emit(model.INSTRUCTION_SEND, template)
	p.res.Suspended = true
	return false
}

// exhausted counts an attempt and reports whether the step ran out of them, in
// which case attempts_exhausted is set.
func (in *Interpreter) exhausted(p *pass, step *flow.Step) bool {
	p.fc.Attempts++
	if step.Expects == nil {
		return false
	}
	if step.Expects.MaxAttempts > 0 && p.fc.Attempts >= step.Expects.MaxAttempts {
		p.fc.SetFlag(FLAG_ATTEMPTS_EXHAUSTED)
		return true
	}
	return false
}

func (in *Interpreter) invoke(p *pass, step *flow.Step) (bool, error) {
	fc := p.fc
	snap := fc.Snapshot()
	req := action.Request{
		ContactId: fc.ContactId,
		FlowName:  fc.FlowName,
		StepId:    step.Id,
		Params:    util.ResolveParams(snap.Variables, step.Params),
		Snapshot:  snap,
	}
	var (
		res action.Result
		err error
	)
	handler, ok := in.actions.Get(step.Action)
	if !ok {
		err = fmt.Errorf("action %s is not registered", step.Action)
	} else {
		res, err = handler.Invoke(p.ctx, req)
		if err == nil && !res.Success {
			err = errActionReportedFailure
		}
	}
	if err == nil {
		for k, v := range res.ContextPatch {
			fc.SetVariable(k, v)
		}
		fc.SetFlag(FLAG_ACTION_SUCCEEDED)
		fc.LastError = ""
		p.record(analytics.Event{Type: analytics.ACTION_SUCCESS, StepId: step.Id, Action: step.Action})
		return true, nil
	}

	fc.SetFlag(FLAG_ACTION_FAILED)
	fc.LastError = err.Error()
	p.record(analytics.Event{Type: analytics.ACTION_FAILURE, StepId: step.Id, Action: step.Action, Reason: err.Error()})
	if in.actions.Policy(step.Action, step.OnFailure) == model.FAILURE_POLICY_CONTINUE {
		logger.Warn("action failed, continuing", zap.String("contact", fc.ContactId), zap.String("step", step.Id), zap.String("action", step.Action), zap.Error(err))
		return true, nil
	}
	fc.State = model.HALTED
	fc.StepEntered = false
	p.record(analytics.Event{Type: analytics.FLOW_HALTED, StepId: step.Id, Action: step.Action, Reason: err.Error()})
	return false, &model.StepActionFailedError{
		ContactId: fc.ContactId,
		StepId:    step.Id,
		Action:    step.Action,
		Cause:     err,
	}
}

// evaluate picks the next step. It reports false when the step is a dead end and
// the context stays parked.
func (in *Interpreter) evaluate(p *pass, step *flow.Step) (bool, error) {
	fc := p.fc
	rule, ok := transition.Next(p.fl.Rules(step.Id), fc.Snapshot())
	if !ok {
		logger.Info("no transition matched, parking", zap.String("contact", fc.ContactId), zap.String("step", step.Id), zap.Error(model.ErrTransitionDeadEnd))
		p.res.Parked = true
		return false, nil
	}
	p.res.Hops++
	if p.res.Hops > p.fl.MaxHops {
		return false, &model.MaxHopExceededError{ContactId: fc.ContactId, StepId: step.Id, MaxHops: p.fl.MaxHops}
	}
	fc.MoveTo(rule.To)
	p.res.Changed = true
	return true, nil
}

func (p *pass) emit(kind model.InstructionKind, template string) {
	values := render.Resolve(template, p.fc.Variables)
	p.res.Instructions = append(p.res.Instructions, model.OutboundInstruction{
		Kind:            kind,
		RenderedContent: render.Render(template, values),
		CorrelationHint: p.fc.CorrelationHint(),
	})
}

func (p *pass) suspend(step *flow.Step) {
	p.res.Suspended = true
	if step.TimeoutSeconds > 0 {
		p.res.Timeouts = append(p.res.Timeouts, TimeoutRequest{
			StepId: step.Id,
			Seq:    p.fc.StepSeq,
			Delay:  time.Duration(step.TimeoutSeconds) * time.Second,
		})
	}
}

// isCurrentTimeout reports whether the trigger is a timeout scheduled for the
// current visit of step.
func (p *pass) isCurrentTimeout(step *flow.Step) bool {
	event := p.trigger.Event
	if p.trigger.Class != model.CLASS_FRESH_INPUT || event == nil || !event.IsTimeout() {
		return false
	}
	stepId, seq := event.TimeoutTarget()
	return stepId == step.Id && seq == p.fc.StepSeq
}

func (p *pass) record(e analytics.Event) {
	e.ContactId = p.fc.ContactId
	e.FlowName = p.fc.FlowName
	e.FlowVersion = p.fc.FlowVersion
	e.InstanceId = p.fc.InstanceId
	p.res.Events = append(p.res.Events, e)
}
