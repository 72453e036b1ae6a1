package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/chatflow/analytics"
	"github.com/mohitkumar/chatflow/classifier"
	"github.com/mohitkumar/chatflow/dispatcher"
	"github.com/mohitkumar/chatflow/flow"
	"github.com/mohitkumar/chatflow/interpreter"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"go.uber.org/zap"
)

// FlowProvider returns compiled flows. Contexts are pinned to the version they
// started with.
type FlowProvider interface {
	GetFlow(ctx context.Context, name string, version int) (*flow.Flow, error)
	GetLatestFlow(ctx context.Context, name string) (*flow.Flow, error)
}

type Options struct {
	// DefaultFlow is started for a reply from a contact without an active flow.
	DefaultFlow string
	// Sync processes internal events inline instead of through the resume queue.
	Sync        bool
	RetryCount  int
	RetryAfter  time.Duration
	RetryPolicy model.RetryPolicy
}

// Outcome describes what happened to one inbound event.
type Outcome struct {
	EntryId      string                      `json:"entryId"`
	ExternalId   string                      `json:"externalId"`
	ContactId    string                      `json:"contactId"`
	Class        model.EventClass            `json:"class,omitempty"`
	State        model.ProcessingState       `json:"processingState"`
	ActiveStep   string                      `json:"activeStep,omitempty"`
	Suspended    bool                        `json:"suspended,omitempty"`
	Parked       bool                        `json:"parked,omitempty"`
	Completed    bool                        `json:"completed,omitempty"`
	Halted       bool                        `json:"halted,omitempty"`
	Skipped      bool                        `json:"skipped,omitempty"`
	Instructions []model.OutboundInstruction `json:"instructions,omitempty"`
	Reason       string                      `json:"reason,omitempty"`
}

type Engine struct {
	contexts    persistence.ContextStore
	ledger      persistence.Ledger
	flows       FlowProvider
	classifier  *classifier.Classifier
	interpreter *interpreter.Interpreter
	validators  *interpreter.Validators
	dispatcher  *dispatcher.Dispatcher
	opts        Options
}

func NewEngine(contexts persistence.ContextStore, ledger persistence.Ledger, flows FlowProvider, actions interpreter.ActionRegistry,
	validators *interpreter.Validators, d *dispatcher.Dispatcher, opts Options) *Engine {
	if validators == nil {
		validators = interpreter.NewValidators()
	}
	return &Engine{
		contexts:    contexts,
		ledger:      ledger,
		flows:       flows,
		classifier:  classifier.NewClassifier(ledger),
		interpreter: interpreter.NewInterpreter(actions, validators),
		validators:  validators,
		dispatcher:  d,
		opts:        opts,
	}
}

// Accept records an inbound event and queues it for a worker. Duplicates are
// acknowledged and nothing else happens.
func (e *Engine) Accept(ctx context.Context, event *model.InboundEvent) (*Outcome, error) {
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrValidationFailed, err.Error())
	}
	entry, wasNew, err := e.classifier.Record(ctx, event)
	if err != nil {
		logger.Error("error in recording event", zap.String("contact", event.ContactId), zap.String("externalId", event.ExternalId), zap.Error(err))
		return nil, err
	}
	if !wasNew {
		return duplicate(entry), nil
	}
	if err := e.enqueue(ctx, entry); err != nil {
		return nil, err
	}
	out := newOutcome(entry)
	out.State = model.STATE_QUEUED
	return out, nil
}

// Submit hands an inbound event to Accept or, in sync mode, to ProcessEvent.
func (e *Engine) Submit(ctx context.Context, event *model.InboundEvent) (*Outcome, error) {
	if e.opts.Sync {
		return e.ProcessEvent(ctx, event)
	}
	return e.Accept(ctx, event)
}

// ProcessEvent records an inbound event and processes it on the calling goroutine.
func (e *Engine) ProcessEvent(ctx context.Context, event *model.InboundEvent) (*Outcome, error) {
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrValidationFailed, err.Error())
	}
	entry, wasNew, err := e.classifier.Record(ctx, event)
	if err != nil {
		logger.Error("error in recording event", zap.String("contact", event.ContactId), zap.String("externalId", event.ExternalId), zap.Error(err))
		return nil, err
	}
	if !wasNew {
		return duplicate(entry), nil
	}
	return e.process(ctx, entry)
}

// Resume processes the ledger entry named by job. Entries that are already
// processed or failed, and entries the context has already applied, are
// skipped, so a job may be delivered any number of times.
func (e *Engine) Resume(ctx context.Context, job model.ResumeJob) (*Outcome, error) {
	entry, err := e.ledger.Get(ctx, job.EntryId)
	if err != nil {
		return nil, err
	}
	if entry.State == model.STATE_PROCESSED || entry.State == model.STATE_FAILED {
		logger.Debug("skipping settled entry", zap.String("contact", entry.ContactId), zap.String("externalId", entry.ExternalId), zap.String("state", string(entry.State)))
		out := newOutcome(entry)
		out.Skipped = true
		return out, nil
	}
	return e.process(ctx, entry)
}

// HandleJob resumes job and schedules a retry when it fails for a reason other
// than the flow itself.
func (e *Engine) HandleJob(ctx context.Context, job model.ResumeJob) error {
	_, err := e.Resume(ctx, job)
	if err == nil || isFlowError(err) || errors.Is(err, model.ErrEntryNotFound) {
		return nil
	}
	return e.scheduleRetry(ctx, job, err)
}

// StartFlow creates a context for contactId on the flow and runs its entry step.
// version 0 selects the latest version.
func (e *Engine) StartFlow(ctx context.Context, contactId string, name string, version int) (*Outcome, error) {
	var (
		fl  *flow.Flow
		err error
	)
	if version == 0 {
		fl, err = e.flows.GetLatestFlow(ctx, name)
	} else {
		fl, err = e.flows.GetFlow(ctx, name, version)
	}
	if err != nil {
		return nil, err
	}
	instanceId := uuid.New().String()
	if _, err := e.contexts.Create(ctx, contactId, fl.Definition, instanceId, fl.Entry().Id); err != nil {
		return nil, err
	}
	logger.Info("flow started", zap.String("contact", contactId), zap.String("flow", fl.Name()), zap.Int("version", fl.Version()), zap.String("instance", instanceId))
	entry, _, err := e.classifier.Record(ctx, &model.InboundEvent{
		ExternalId: "start:" + instanceId,
		ContactId:  contactId,
		Kind:       model.EVENT_INTERNAL_REENTER,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return e.apply(ctx, entry, true)
}

// SubmitStructuredReply validates a structured reply against the active step,
// writes it with the step's reentry flag and then dispatches an internal reentry
// so the flow advances without validating the answer twice.
func (e *Engine) SubmitStructuredReply(ctx context.Context, reply model.StructuredReply) (*Outcome, error) {
	if reply.ExternalId == "" || reply.ContactId == "" {
		return nil, fmt.Errorf("%w: externalId and contactId are required", model.ErrValidationFailed)
	}
	entry, wasNew, err := e.classifier.Record(ctx, &model.InboundEvent{
		ExternalId:      "reply:" + reply.ExternalId,
		ContactId:       reply.ContactId,
		Kind:            model.EVENT_EXTERNAL_REPLY,
		Payload:         reply.Values,
		CorrelationHint: reply.CorrelationHint,
		ReceivedAt:      time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if !wasNew {
		return duplicate(entry), nil
	}

	var flag string
	fc, err := e.contexts.Mutate(ctx, reply.ContactId, func(working *model.FlowContext) error {
		if working.State == model.HALTED {
			return model.ErrFlowHalted
		}
		if reply.CorrelationHint != "" && reply.CorrelationHint != working.CorrelationHint() {
			return &model.ValidationError{StepId: working.ActiveStep, Reason: "reply was requested by " + reply.CorrelationHint}
		}
		fl, err := e.flows.GetFlow(ctx, working.FlowName, working.FlowVersion)
		if err != nil {
			return err
		}
		step, ok := fl.Step(working.ActiveStep)
		if !ok || step.Expects == nil || step.Expects.Variable == "" {
			return &model.ValidationError{StepId: working.ActiveStep, Reason: "step does not take a reply"}
		}
		value, err := e.validators.Validate(step, entry.Event().Answer())
		if err != nil {
			return &model.ValidationError{StepId: step.Id, Reason: err.Error()}
		}
		working.SetVariable(step.Expects.Variable, value)
		flag = model.ReentryFlagFor(step.StepDef)
		working.SetFlag(flag)
		working.MarkApplied(entry.Id)
		return nil
	})
	if err != nil {
		logger.Info("structured reply rejected", zap.String("contact", reply.ContactId), zap.String("externalId", reply.ExternalId), zap.Error(err))
		if errors.Is(err, model.ErrValidationFailed) || errors.Is(err, model.ErrFlowHalted) || errors.Is(err, model.ErrNoActiveFlow) {
			if markErr := e.ledger.MarkFailed(ctx, entry.Id, err.Error()); markErr != nil {
				return nil, markErr
			}
		}
		return nil, err
	}
	if err := e.ledger.MarkProcessed(ctx, entry.Id); err != nil {
		return nil, err
	}
	return e.dispatch(ctx, &model.InboundEvent{
		ExternalId:      "reenter:" + reply.ExternalId,
		ContactId:       reply.ContactId,
		Kind:            model.EVENT_INTERNAL_REENTER,
		Payload:         map[string]any{model.PAYLOAD_FLAG: flag},
		CorrelationHint: fc.CorrelationHint(),
		ReceivedAt:      time.Now().UTC(),
	})
}

// Retry re-enters the step a halted flow stopped at.
func (e *Engine) Retry(ctx context.Context, contactId string) (*Outcome, error) {
	fc, err := e.contexts.Mutate(ctx, contactId, func(working *model.FlowContext) error {
		if working.State != model.HALTED {
			return fmt.Errorf("%w: contact %s", model.ErrFlowNotHalted, contactId)
		}
		working.State = model.RUNNING
		working.StepEntered = false
		working.LastError = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("retrying halted step", zap.String("contact", contactId), zap.String("step", fc.ActiveStep))
	return e.dispatch(ctx, &model.InboundEvent{
		ExternalId: fmt.Sprintf("retry:%s:%d:%s", fc.InstanceId, fc.StepSeq, uuid.New().String()),
		ContactId:  contactId,
		Kind:       model.EVENT_INTERNAL_REENTER,
		ReceivedAt: time.Now().UTC(),
	})
}

func (e *Engine) Reset(ctx context.Context, contactId string) error {
	logger.Info("resetting flow context", zap.String("contact", contactId))
	return e.contexts.Clear(ctx, contactId)
}

func (e *Engine) GetContext(ctx context.Context, contactId string) (*model.FlowContext, error) {
	return e.contexts.Get(ctx, contactId)
}

func (e *Engine) GetEntry(ctx context.Context, entryId string) (*model.LedgerEntry, error) {
	return e.ledger.Get(ctx, entryId)
}

// RetryEntry puts a failed entry back on the resume queue.
func (e *Engine) RetryEntry(ctx context.Context, entryId string) (*Outcome, error) {
	entry, err := e.ledger.Get(ctx, entryId)
	if err != nil {
		return nil, err
	}
	if entry.Direction != model.DIRECTION_INBOUND {
		return nil, fmt.Errorf("%w: entry %s is outbound", model.ErrIllegalStateTransition, entryId)
	}
	if err := e.ledger.MarkQueued(ctx, entryId); err != nil {
		return nil, err
	}
	entry.State = model.STATE_QUEUED
	if e.opts.Sync {
		return e.process(ctx, entry)
	}
	if err := e.enqueue(ctx, entry); err != nil {
		return nil, err
	}
	return newOutcome(entry), nil
}

// SweepPending hands inbound entries that have not moved for olderThan back to
// the workers. It picks up jobs lost with a stopped lane or a crashed process.
// Queueing refreshes an entry, so it is not swept again before olderThan passes.
func (e *Engine) SweepPending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	pending, err := e.ledger.ListPending(ctx, time.Now().UTC().Add(-olderThan), limit)
	if err != nil {
		logger.Error("error in listing pending entries", zap.Error(err))
		return 0, err
	}
	swept := 0
	for _, entry := range pending {
		logger.Info("sweeping pending entry", zap.String("contact", entry.ContactId), zap.String("externalId", entry.ExternalId),
			zap.String("state", string(entry.State)), zap.Time("updatedAt", entry.UpdatedAt))
		if e.opts.Sync {
			if err := e.ledger.MarkQueued(ctx, entry.Id); err != nil {
				logger.Error("error in requeueing pending entry", zap.String("entryId", entry.Id), zap.Error(err))
				continue
			}
			entry.State = model.STATE_QUEUED
			if _, err := e.process(ctx, entry); err != nil && !isFlowError(err) {
				logger.Error("error in processing pending entry", zap.String("entryId", entry.Id), zap.Error(err))
				continue
			}
		} else if err := e.enqueue(ctx, entry); err != nil {
			continue
		}
		swept++
	}
	return swept, nil
}

func (e *Engine) process(ctx context.Context, entry *model.LedgerEntry) (*Outcome, error) {
	if out, done, err := e.settleIfCompleted(ctx, entry); done || err != nil {
		return out, err
	}
	_, err := e.contexts.Get(ctx, entry.ContactId)
	if errors.Is(err, model.ErrNoActiveFlow) {
		return e.noActiveFlow(ctx, entry)
	}
	if err != nil {
		logger.Error("error in loading flow context", zap.String("contact", entry.ContactId), zap.String("externalId", entry.ExternalId), zap.Error(err))
		return nil, err
	}
	return e.apply(ctx, entry, false)
}

// noActiveFlow handles an event for a contact without a context. A reply starts
// the default flow when one is configured, anything else is settled.
func (e *Engine) noActiveFlow(ctx context.Context, entry *model.LedgerEntry) (*Outcome, error) {
	if out, done, err := e.settleIfCompleted(ctx, entry); done || err != nil {
		return out, err
	}
	event := entry.Event()
	if e.opts.DefaultFlow == "" || event.Kind != model.EVENT_EXTERNAL_REPLY || event.IsTimeout() {
		logger.Info("no active flow for event", zap.String("contact", entry.ContactId), zap.String("externalId", entry.ExternalId))
		if err := e.ledger.MarkProcessed(ctx, entry.Id); err != nil {
			return nil, err
		}
		out := newOutcome(entry)
		out.State = model.STATE_PROCESSED
		out.Reason = model.ErrNoActiveFlow.Error()
		return out, nil
	}
	fl, err := e.flows.GetLatestFlow(ctx, e.opts.DefaultFlow)
	if err != nil {
		logger.Error("default flow is not available", zap.String("flow", e.opts.DefaultFlow), zap.String("contact", entry.ContactId), zap.Error(err))
		return nil, err
	}
	instanceId := uuid.New().String()
	_, err = e.contexts.Create(ctx, entry.ContactId, fl.Definition, instanceId, fl.Entry().Id)
	if errors.Is(err, model.ErrFlowAlreadyActive) {
		return e.apply(ctx, entry, false)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("default flow started", zap.String("contact", entry.ContactId), zap.String("flow", fl.Name()), zap.String("instance", instanceId), zap.String("externalId", entry.ExternalId))
	return e.apply(ctx, entry, true)
}

// settleIfCompleted marks entry processed when a flow that already completed
// applied it. The context of that flow is gone, so only the contact's
// completed flows remember the entry.
func (e *Engine) settleIfCompleted(ctx context.Context, entry *model.LedgerEntry) (*Outcome, bool, error) {
	done, err := e.contexts.Completed(ctx, entry.ContactId)
	if err != nil {
		logger.Error("error in loading completed flows", zap.String("contact", entry.ContactId), zap.Error(err))
		return nil, false, err
	}
	if !done.HasApplied(entry.Id) {
		return nil, false, nil
	}
	logger.Debug("entry applied by a completed flow", zap.String("contact", entry.ContactId), zap.String("externalId", entry.ExternalId),
		zap.String("instance", done.LastInstanceId))
	if err := e.ledger.MarkProcessed(ctx, entry.Id); err != nil {
		return nil, false, err
	}
	out := newOutcome(entry)
	out.Skipped = true
	out.State = model.STATE_PROCESSED
	return out, true, nil
}

// apply runs the interpreter for entry inside the contact's serialized section
// and commits the result. Side effects run only after the commit.
func (e *Engine) apply(ctx context.Context, entry *model.LedgerEntry, arrival bool) (*Outcome, error) {
	if entry.State == model.STATE_NEW {
		if err := e.ledger.MarkQueued(ctx, entry.Id); err != nil {
			return nil, err
		}
		entry.State = model.STATE_QUEUED
	}
	event := entry.Event()
	var (
		res       *interpreter.Result
		runErr    error
		class     model.EventClass
		skipped   bool
		committed bool
		fc        *model.FlowContext
	)
	err := e.dispatcher.Run(ctx, func(uow *dispatcher.UnitOfWork) error {
		var err error
		fc, err = e.contexts.Mutate(ctx, entry.ContactId, func(working *model.FlowContext) error {
			if working.HasApplied(entry.Id) {
				skipped = true
				return persistence.ErrNoChange
			}
			fl, err := e.flows.GetFlow(ctx, working.FlowName, working.FlowVersion)
			if err != nil {
				return err
			}
			class = model.CLASS_ARRIVAL
			if !arrival {
				class = classifier.Resolve(event, working, fl)
			}
			res, runErr = e.interpreter.Run(ctx, fl, working, interpreter.Trigger{Class: class, Event: event})
			switch {
			case errors.Is(runErr, model.ErrFlowHalted):
				return persistence.ErrNoChange
			case errors.Is(runErr, model.ErrStepActionFailed):
			case runErr != nil:
				return runErr
			}
			if !res.Changed {
				return persistence.ErrNoChange
			}
			working.MarkApplied(entry.Id)
			if res.Completed {
				return persistence.ErrClearContext
			}
			return nil
		})
		if err != nil {
			return err
		}
		committed = true
		if !skipped && res != nil {
			e.afterCommit(uow, entry, fc, res)
		}
		return nil
	})

	if err != nil && !committed {
		switch {
		case errors.Is(err, model.ErrMaxHopExceeded):
			logger.Error("max hops exceeded", zap.String("contact", entry.ContactId), zap.String("externalId", entry.ExternalId), zap.Error(err))
			if markErr := e.ledger.MarkFailed(ctx, entry.Id, err.Error()); markErr != nil {
				return nil, markErr
			}
			out := newOutcome(entry)
			out.Class = class
			out.State = model.STATE_FAILED
			out.Reason = err.Error()
			return out, err
		case errors.Is(err, model.ErrNoActiveFlow):
			return e.noActiveFlow(ctx, entry)
		default:
			logger.Error("error in processing event, entry stays queued", zap.String("contact", entry.ContactId), zap.String("externalId", entry.ExternalId), zap.Error(err))
			return nil, err
		}
	}
	if err != nil {
		logger.Error("post commit callbacks failed", zap.String("contact", entry.ContactId), zap.String("externalId", entry.ExternalId), zap.Error(err))
	}

	out := newOutcome(entry)
	out.Class = class
	out.Skipped = skipped
	if fc != nil {
		out.ActiveStep = fc.ActiveStep
		out.Halted = fc.State == model.HALTED
	}
	if res != nil && !skipped {
		out.Suspended = res.Suspended
		out.Parked = res.Parked
		out.Completed = res.Completed
		out.Instructions = res.Instructions
	}
	var failed *model.StepActionFailedError
	if errors.As(runErr, &failed) {
		logger.Error("step action failed, flow halted", zap.String("contact", entry.ContactId), zap.String("step", failed.StepId),
			zap.String("externalId", entry.ExternalId), zap.String("action", failed.Action), zap.Error(failed.Cause))
		if err := e.ledger.MarkFailed(ctx, entry.Id, runErr.Error()); err != nil {
			return nil, err
		}
		out.State = model.STATE_FAILED
		out.Reason = runErr.Error()
		return out, runErr
	}
	if errors.Is(runErr, model.ErrFlowHalted) {
		logger.Info("event for halted flow ignored", zap.String("contact", entry.ContactId), zap.String("step", out.ActiveStep), zap.String("externalId", entry.ExternalId))
		out.Reason = runErr.Error()
	}
	if err := e.ledger.MarkProcessed(ctx, entry.Id); err != nil {
		logger.Error("error in marking entry processed", zap.String("contact", entry.ContactId), zap.String("externalId", entry.ExternalId), zap.Error(err))
		return nil, err
	}
	out.State = model.STATE_PROCESSED
	return out, nil
}

func (e *Engine) afterCommit(uow *dispatcher.UnitOfWork, entry *model.LedgerEntry, fc *model.FlowContext, res *interpreter.Result) {
	uow.Deliver(entry.Id, fc.ContactId, res.Instructions)
	for _, t := range res.Timeouts {
		uow.ScheduleTimeout(model.TimeoutJob{
			ContactId:  fc.ContactId,
			InstanceId: fc.InstanceId,
			StepId:     t.StepId,
			StepSeq:    t.Seq,
		}, t.Delay)
	}
	if res.Checkpoint {
		next := model.NewContinuationEvent(fc.ContactId, fc.InstanceId, fc.StepSeq, res.Hops)
		uow.OnCommit("continue "+next.ExternalId, func(ctx context.Context) error {
			_, err := e.dispatch(ctx, next)
			if isFlowError(err) {
				return nil
			}
			return err
		})
	}
	if len(res.Events) > 0 {
		events := res.Events
		uow.OnCommit("analytics", func(ctx context.Context) error {
			analytics.Record(events...)
			return nil
		})
	}
}

// dispatch records an event the engine produced itself and processes it inline
// or through the resume queue. Unlike an inbound duplicate, a recorded entry
// that never settled is picked up again.
func (e *Engine) dispatch(ctx context.Context, event *model.InboundEvent) (*Outcome, error) {
	entry, _, err := e.classifier.Record(ctx, event)
	if err != nil {
		return nil, err
	}
	if entry.State == model.STATE_PROCESSED || entry.State == model.STATE_FAILED {
		return duplicate(entry), nil
	}
	if e.opts.Sync {
		return e.process(ctx, entry)
	}
	if err := e.enqueue(ctx, entry); err != nil {
		return nil, err
	}
	out := newOutcome(entry)
	out.State = model.STATE_QUEUED
	return out, nil
}

func (e *Engine) enqueue(ctx context.Context, entry *model.LedgerEntry) error {
	err := e.dispatcher.Run(ctx, func(uow *dispatcher.UnitOfWork) error {
		uow.Enqueue(model.ResumeJob{EntryId: entry.Id, ContactId: entry.ContactId})
		return e.ledger.MarkQueued(ctx, entry.Id)
	})
	if err != nil {
		logger.Error("error in queueing event", zap.String("contact", entry.ContactId), zap.String("externalId", entry.ExternalId), zap.Error(err))
	}
	return err
}

func (e *Engine) scheduleRetry(ctx context.Context, job model.ResumeJob, cause error) error {
	if job.TryCount >= e.opts.RetryCount {
		logger.Error("resume retries exhausted, failing entry", zap.String("contact", job.ContactId), zap.String("entryId", job.EntryId), zap.Int("tries", job.TryCount), zap.Error(cause))
		return e.ledger.MarkFailed(ctx, job.EntryId, cause.Error())
	}
	job.TryCount++
	delay := e.opts.RetryAfter
	if e.opts.RetryPolicy == model.RETRY_POLICY_BACKOFF {
		delay = e.opts.RetryAfter * time.Duration(job.TryCount)
	}
	logger.Info("retrying resume job", zap.String("contact", job.ContactId), zap.String("entryId", job.EntryId), zap.Int("try", job.TryCount), zap.Duration("after", delay), zap.Error(cause))
	return e.dispatcher.PushRetry(ctx, job, delay)
}

func isFlowError(err error) bool {
	return errors.Is(err, model.ErrStepActionFailed) || errors.Is(err, model.ErrMaxHopExceeded)
}

func newOutcome(entry *model.LedgerEntry) *Outcome {
	return &Outcome{
		EntryId:    entry.Id,
		ExternalId: entry.ExternalId,
		ContactId:  entry.ContactId,
		State:      entry.State,
	}
}

func duplicate(entry *model.LedgerEntry) *Outcome {
	out := newOutcome(entry)
	out.Class = model.CLASS_DUPLICATE
	return out
}
