package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/outbound"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/util"
	"go.uber.org/zap"
)

type Partitioner interface {
	GetPartition(key string) int
}

// Dispatcher runs a commit and, only when it succeeds, the side effects that
// depend on it: queue pushes, timers and outbound delivery.
type Dispatcher struct {
	queue       persistence.Queue
	delayQueue  persistence.DelayQueue
	partitioner Partitioner
	sink        outbound.Sink
	ledger      persistence.Ledger
	jobEncDec   util.EncoderDecoder[model.ResumeJob]
	timeEncDec  util.EncoderDecoder[model.TimeoutJob]
	maxElapsed  time.Duration
}

func NewDispatcher(queue persistence.Queue, delayQueue persistence.DelayQueue, partitioner Partitioner, sink outbound.Sink, ledger persistence.Ledger) *Dispatcher {
	return &Dispatcher{
		queue:       queue,
		delayQueue:  delayQueue,
		partitioner: partitioner,
		sink:        sink,
		ledger:      ledger,
		jobEncDec:   util.NewJsonEncoderDecoder[model.ResumeJob](),
		timeEncDec:  util.NewJsonEncoderDecoder[model.TimeoutJob](),
		maxElapsed:  5 * time.Second,
	}
}

type callback struct {
	name string
	fn   func(ctx context.Context) error
}

// UnitOfWork collects post-commit callbacks while a commit is being prepared.
type UnitOfWork struct {
	d         *Dispatcher
	callbacks []callback
}

// Run calls fn and then, if fn succeeded, every callback fn registered, in
// registration order. A failing callback does not stop the ones after it; the
// failures are joined into the returned error.
func (d *Dispatcher) Run(ctx context.Context, fn func(uow *UnitOfWork) error) error {
	uow := &UnitOfWork{d: d}
	if err := fn(uow); err != nil {
		return err
	}
	var errs []error
	for _, cb := range uow.callbacks {
		if err := d.retry(ctx, cb.fn); err != nil {
			logger.Error("error in post commit callback", zap.String("callback", cb.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", cb.name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxElapsedTime = d.maxElapsed
	return backoff.Retry(func() error {
		err := fn(ctx)
		var storageErr persistence.StorageLayerError
		if err != nil && !errors.As(err, &storageErr) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}

// Push puts a resume job on the partition of its contact.
func (d *Dispatcher) Push(ctx context.Context, job model.ResumeJob) error {
	data, err := d.jobEncDec.Encode(job)
	if err != nil {
		return err
	}
	return d.queue.Push(ctx, persistence.RESUME_QUEUE, d.partitioner.GetPartition(job.ContactId), data)
}

// Deliver hands instructions produced for the inbound entry inboundId to the
// sink. Every instruction is recorded in the ledger first and one already
// marked processed is not sent again.
func (d *Dispatcher) Deliver(ctx context.Context, inboundId string, contactId string, instructions []model.OutboundInstruction) error {
	pending := make([]model.OutboundInstruction, 0, len(instructions))
	ids := make([]string, 0, len(instructions))
	for i, ins := range instructions {
		entry, _, err := d.ledger.RecordIfNew(ctx, model.NewOutboundEntry(uuid.New().String(), inboundId, i, contactId, ins))
		if err != nil {
			return err
		}
		if entry.State == model.STATE_PROCESSED {
			continue
		}
		pending = append(pending, ins)
		ids = append(ids, entry.Id)
	}
	if len(pending) == 0 {
		return nil
	}
	if err := d.sink.Deliver(ctx, contactId, pending); err != nil {
		return err
	}
	for _, id := range ids {
		if err := d.ledger.MarkProcessed(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// PushRetry puts a resume job on the retry queue to be picked up after delay.
func (d *Dispatcher) PushRetry(ctx context.Context, job model.ResumeJob, delay time.Duration) error {
	data, err := d.jobEncDec.Encode(job)
	if err != nil {
		return err
	}
	return d.delayQueue.PushWithDelay(ctx, persistence.RESUME_RETRY_QUEUE, delay, data)
}

// Enqueue pushes a resume job for the ledger entry after commit. The job names
// the entry only, the worker reads the current state itself.
func (u *UnitOfWork) Enqueue(job model.ResumeJob) {
	u.OnCommit("enqueue "+job.EntryId, func(ctx context.Context) error {
		return u.d.Push(ctx, job)
	})
}

func (u *UnitOfWork) ScheduleTimeout(job model.TimeoutJob, delay time.Duration) {
	u.OnCommit("timeout "+job.StepId, func(ctx context.Context) error {
		data, err := u.d.timeEncDec.Encode(job)
		if err != nil {
			return err
		}
		return u.d.delayQueue.PushWithDelay(ctx, persistence.TIMEOUT_QUEUE, delay, data)
	})
}

func (u *UnitOfWork) Deliver(inboundId string, contactId string, instructions []model.OutboundInstruction) {
	if len(instructions) == 0 {
		return
	}
	u.OnCommit("deliver "+contactId, func(ctx context.Context) error {
		return u.d.Deliver(ctx, inboundId, contactId, instructions)
	})
}

func (u *UnitOfWork) OnCommit(name string, fn func(ctx context.Context) error) {
	u.callbacks = append(u.callbacks, callback{name: name, fn: fn})
}
