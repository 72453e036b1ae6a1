package classifier

import (
	"context"

	"github.com/google/uuid"
	"github.com/mohitkumar/chatflow/flow"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"go.uber.org/zap"
)

// Classifier decides what an inbound event means for a contact. The ledger is
// the only place that knows whether an event was seen before.
type Classifier struct {
	ledger persistence.Ledger
}

func NewClassifier(ledger persistence.Ledger) *Classifier {
	return &Classifier{ledger: ledger}
}

// Record stores the event in the ledger unless its external id is known. It
// reports whether this call created the entry.
func (c *Classifier) Record(ctx context.Context, event *model.InboundEvent) (*model.LedgerEntry, bool, error) {
	entry, wasNew, err := c.ledger.RecordIfNew(ctx, model.NewInboundEntry(uuid.New().String(), event))
	if err != nil {
		return nil, false, err
	}
	if !wasNew {
		logger.Debug("duplicate event", zap.String("contact", event.ContactId), zap.String("externalId", event.ExternalId), zap.String("entryId", entry.Id))
	}
	return entry, wasNew, nil
}

// Resolve classifies an event that is not a duplicate against the live context.
// An internal reentry counts as already consumed only when it names the reentry
// flag of the active step and a handler has set that flag.
func Resolve(event *model.InboundEvent, fc *model.FlowContext, fl *flow.Flow) model.EventClass {
	if event.Kind != model.EVENT_INTERNAL_REENTER {
		return model.CLASS_FRESH_INPUT
	}
	if fc == nil || fl == nil {
		return model.CLASS_ORDINARY_REENTRY
	}
	step, ok := fl.Step(fc.ActiveStep)
	if !ok {
		return model.CLASS_ORDINARY_REENTRY
	}
	if event.CorrelationHint != "" && event.CorrelationHint != fc.CorrelationHint() {
		return model.CLASS_ORDINARY_REENTRY
	}
	flag := event.Flag()
	if flag != "" && flag == model.ReentryFlagFor(step.StepDef) && fc.HasFlag(flag) {
		return model.CLASS_ALREADY_CONSUMED_REENTRY
	}
	return model.CLASS_ORDINARY_REENTRY
}

// Classify records the event and resolves its class in one go.
func (c *Classifier) Classify(ctx context.Context, event *model.InboundEvent, fc *model.FlowContext, fl *flow.Flow) (*model.LedgerEntry, model.EventClass, error) {
	entry, wasNew, err := c.Record(ctx, event)
	if err != nil {
		return nil, "", err
	}
	if !wasNew {
		return entry, model.CLASS_DUPLICATE, nil
	}
	return entry, Resolve(event, fc, fl), nil
}
