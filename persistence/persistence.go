package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohitkumar/chatflow/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

// ErrNoChange returned from a MutateFunc makes Mutate return the current context
// without writing it.
var ErrNoChange = errors.New("no change")

// ErrClearContext returned from a MutateFunc deletes the context in the same
// serialized section and folds it into the contact's CompletedFlows. Mutate
// returns the context as fn left it.
var ErrClearContext = errors.New("clear context")

const RESUME_QUEUE = "resume"
const RESUME_RETRY_QUEUE = "resume-retry"
const TIMEOUT_QUEUE = "timeout"

type MutateFunc func(fc *model.FlowContext) error

type ContextStore interface {
	Get(ctx context.Context, contactId string) (*model.FlowContext, error)
	Create(ctx context.Context, contactId string, def *model.FlowDefinition, instanceId string, entryStep string) (*model.FlowContext, error)
	Mutate(ctx context.Context, contactId string, fn MutateFunc) (*model.FlowContext, error)
	Clear(ctx context.Context, contactId string) error
	// Completed returns the flows that completed for contactId, empty when none did.
	Completed(ctx context.Context, contactId string) (*model.CompletedFlows, error)
}

type Ledger interface {
	RecordIfNew(ctx context.Context, entry *model.LedgerEntry) (*model.LedgerEntry, bool, error)
	Get(ctx context.Context, id string) (*model.LedgerEntry, error)
	GetByExternalId(ctx context.Context, externalId string) (*model.LedgerEntry, error)
	MarkQueued(ctx context.Context, id string) error
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string) error
	// ListPending returns inbound entries still new or queued that were last
	// updated no later than before, oldest first. limit <= 0 returns all.
	ListPending(ctx context.Context, before time.Time, limit int) ([]*model.LedgerEntry, error)
}

type FlowDefinitionStorage interface {
	SaveFlowDefinition(ctx context.Context, def model.FlowDefinition) error
	GetFlowDefinition(ctx context.Context, name string, version int) (*model.FlowDefinition, error)
	GetLatestFlowDefinition(ctx context.Context, name string) (*model.FlowDefinition, error)
	DeleteFlowDefinition(ctx context.Context, name string, version int) error
}

type Queue interface {
	Push(ctx context.Context, queueName string, partition int, message []byte) error
	Pop(ctx context.Context, queueName string, partition int, batchSize int) ([]string, error)
}

type DelayQueue interface {
	Push(ctx context.Context, queueName string, message []byte) error
	PushWithDelay(ctx context.Context, queueName string, delay time.Duration, message []byte) error
	Pop(ctx context.Context, queueName string) ([]string, error)
}

// ApplyState validates and applies a processing state change to entry in place.
// It reports whether the entry changed.
// Queueing an entry that is already queued refreshes its update time.
func ApplyState(entry *model.LedgerEntry, state model.ProcessingState, reason string) (bool, error) {
	if entry.State == state {
		if state == model.STATE_QUEUED {
			entry.UpdatedAt = time.Now().UTC()
			return true, nil
		}
		return false, nil
	}
	if !model.CanMoveTo(entry.State, state) {
		return false, fmt.Errorf("%w: %s -> %s for entry %s", model.ErrIllegalStateTransition, entry.State, state, entry.Id)
	}
	entry.State = state
	entry.UpdatedAt = time.Now().UTC()
	if state == model.STATE_FAILED {
		entry.FailureReason = reason
	}
	return true, nil
}
