package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/outbound"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/persistence/memory"
	"github.com/stretchr/testify/require"
)

type fixedPartition int

func (p fixedPartition) GetPartition(key string) int {
	return int(p)
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()
	for scenario, fn := range map[string]func(t *testing.T, d *Dispatcher, sink *outbound.RecordingSink){
		"callbacks run after commit in order": func(t *testing.T, d *Dispatcher, sink *outbound.RecordingSink) {
			var order []string
			err := d.Run(ctx, func(uow *UnitOfWork) error {
				uow.OnCommit("first", func(ctx context.Context) error {
					order = append(order, "first")
					return nil
				})
				uow.Enqueue(model.ResumeJob{EntryId: "e1", ContactId: "c1"})
				uow.Deliver("e1", "c1", []model.OutboundInstruction{{RenderedContent: "hi"}})
				uow.OnCommit("last", func(ctx context.Context) error {
					order = append(order, "last")
					return nil
				})
				order = append(order, "commit")
				return nil
			})
			require.NoError(t, err)
			require.Equal(t, []string{"commit", "first", "last"}, order)
			require.Equal(t, []string{"hi"}, sink.Contents("c1"))

			msgs, err := d.queue.Pop(ctx, persistence.RESUME_QUEUE, 3, 10)
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			var job model.ResumeJob
			require.NoError(t, json.Unmarshal([]byte(msgs[0]), &job))
			require.Equal(t, "e1", job.EntryId)
		},
		"failed commit drops callbacks": func(t *testing.T, d *Dispatcher, sink *outbound.RecordingSink) {
			boom := errors.New("commit failed")
			ran := false
			err := d.Run(ctx, func(uow *UnitOfWork) error {
				uow.OnCommit("never", func(ctx context.Context) error {
					ran = true
					return nil
				})
				uow.Enqueue(model.ResumeJob{EntryId: "e1", ContactId: "c1"})
				uow.Deliver("e1", "c1", []model.OutboundInstruction{{RenderedContent: "hi"}})
				return boom
			})
			require.ErrorIs(t, err, boom)
			require.False(t, ran)
			require.Empty(t, sink.Deliveries())
			msgs, err := d.queue.Pop(ctx, persistence.RESUME_QUEUE, 3, 10)
			require.NoError(t, err)
			require.Empty(t, msgs)
		},
		"failing callback does not block the rest": func(t *testing.T, d *Dispatcher, sink *outbound.RecordingSink) {
			err := d.Run(ctx, func(uow *UnitOfWork) error {
				uow.OnCommit("broken", func(ctx context.Context) error {
					return errors.New("broken")
				})
				uow.Deliver("e1", "c1", []model.OutboundInstruction{{RenderedContent: "still sent"}})
				return nil
			})
			require.Error(t, err)
			require.Equal(t, []string{"still sent"}, sink.Contents("c1"))
		},
		"delivered instructions are not sent twice": func(t *testing.T, d *Dispatcher, sink *outbound.RecordingSink) {
			instructions := []model.OutboundInstruction{{RenderedContent: "one"}, {RenderedContent: "two"}}
			require.NoError(t, d.Deliver(ctx, "e1", "c1", instructions))
			require.NoError(t, d.Deliver(ctx, "e1", "c1", instructions))
			require.Equal(t, []string{"one", "two"}, sink.Contents("c1"))

			entry, err := d.ledger.GetByExternalId(ctx, "out:e1:1")
			require.NoError(t, err)
			require.Equal(t, model.DIRECTION_OUTBOUND, entry.Direction)
			require.Equal(t, model.STATE_PROCESSED, entry.State)
		},
		"timeouts go to the delay queue": func(t *testing.T, d *Dispatcher, sink *outbound.RecordingSink) {
			err := d.Run(ctx, func(uow *UnitOfWork) error {
				uow.ScheduleTimeout(model.TimeoutJob{ContactId: "c1", InstanceId: "i1", StepId: "FORM", StepSeq: 2}, 0)
				return nil
			})
			require.NoError(t, err)
			msgs, err := d.delayQueue.Pop(ctx, persistence.TIMEOUT_QUEUE)
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			var job model.TimeoutJob
			require.NoError(t, json.Unmarshal([]byte(msgs[0]), &job))
			require.Equal(t, int64(2), job.StepSeq)
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			sink := outbound.NewRecordingSink()
			d := NewDispatcher(memory.NewQueue(), memory.NewDelayQueue(), fixedPartition(3), sink, memory.NewLedger())
			d.maxElapsed = 100 * time.Millisecond
			fn(t, d, sink)
		})
	}
}
