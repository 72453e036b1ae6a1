package executor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mohitkumar/chatflow/engine"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/persistence/memory"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu     sync.Mutex
	jobs   []model.ResumeJob
	events []*model.InboundEvent
}

func (f *fakeEngine) HandleJob(ctx context.Context, job model.ResumeJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeEngine) Submit(ctx context.Context, event *model.InboundEvent) (*engine.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return &engine.Outcome{ExternalId: event.ExternalId}, nil
}

func (f *fakeEngine) handled() []model.ResumeJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ResumeJob(nil), f.jobs...)
}

func (f *fakeEngine) submitted() []*model.InboundEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.InboundEvent(nil), f.events...)
}

type partitions []int

func (p partitions) GetPartitions() []int {
	return p
}

type queuePusher struct {
	queue persistence.Queue
}

func (q queuePusher) Push(ctx context.Context, job model.ResumeJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.queue.Push(ctx, persistence.RESUME_QUEUE, 0, data)
}

func push(t *testing.T, queue persistence.Queue, partition int, job model.ResumeJob) {
	data, err := json.Marshal(job)
	require.NoError(t, err)
	require.NoError(t, queue.Push(context.Background(), persistence.RESUME_QUEUE, partition, data))
}

func TestResumeExecutor(t *testing.T) {
	eng := &fakeEngine{}
	queue := memory.NewQueue()
	var wg sync.WaitGroup
	ex := NewResumeExecutor(eng, queue, partitions{0, 1}, ResumeExecutorConfig{Lanes: 2, PollInterval: 10 * time.Millisecond}, &wg)
	require.NoError(t, ex.Start())

	push(t, queue, 0, model.ResumeJob{EntryId: "e1", ContactId: "c1"})
	push(t, queue, 0, model.ResumeJob{EntryId: "e2", ContactId: "c1"})
	push(t, queue, 1, model.ResumeJob{EntryId: "e3", ContactId: "c2"})
	// partition 5 is owned by another node
	push(t, queue, 5, model.ResumeJob{EntryId: "e4", ContactId: "c3"})

	require.Eventually(t, func() bool {
		return len(eng.handled()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	order := make([]string, 0)
	for _, job := range eng.handled() {
		if job.ContactId == "c1" {
			order = append(order, job.EntryId)
		}
	}
	require.Equal(t, []string{"e1", "e2"}, order)

	require.NoError(t, ex.Stop())
	wg.Wait()
}

func TestRetryExecutor(t *testing.T) {
	delayQueue := memory.NewDelayQueue()
	queue := memory.NewQueue()
	var wg sync.WaitGroup
	ex := NewRetryExecutor(delayQueue, queuePusher{queue: queue}, 10*time.Millisecond, &wg)
	require.NoError(t, ex.Start())

	data, err := json.Marshal(model.ResumeJob{EntryId: "e1", ContactId: "c1", TryCount: 2})
	require.NoError(t, err)
	require.NoError(t, delayQueue.PushWithDelay(context.Background(), persistence.RESUME_RETRY_QUEUE, 20*time.Millisecond, data))

	var msgs []string
	require.Eventually(t, func() bool {
		popped, _ := queue.Pop(context.Background(), persistence.RESUME_QUEUE, 0, 10)
		msgs = append(msgs, popped...)
		return len(msgs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	var job model.ResumeJob
	require.NoError(t, json.Unmarshal([]byte(msgs[0]), &job))
	require.Equal(t, 2, job.TryCount)

	require.NoError(t, ex.Stop())
	wg.Wait()
}

func TestTimeoutExecutor(t *testing.T) {
	eng := &fakeEngine{}
	delayQueue := memory.NewDelayQueue()
	var wg sync.WaitGroup
	ex := NewTimeoutExecutor(eng, delayQueue, 10*time.Millisecond, &wg)
	require.NoError(t, ex.Start())

	data, err := json.Marshal(model.TimeoutJob{ContactId: "c1", InstanceId: "i1", StepId: "UPLOAD", StepSeq: 3})
	require.NoError(t, err)
	require.NoError(t, delayQueue.Push(context.Background(), persistence.TIMEOUT_QUEUE, data))

	require.Eventually(t, func() bool {
		return len(eng.submitted()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	event := eng.submitted()[0]
	require.Equal(t, "timeout:i1:UPLOAD:3", event.ExternalId)
	require.True(t, event.IsTimeout())

	require.NoError(t, ex.Stop())
	wg.Wait()
}

type fakeSweeper struct {
	mu    sync.Mutex
	calls []time.Duration
	limit int
}

func (f *fakeSweeper) SweepPending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, olderThan)
	f.limit = limit
	return 1, nil
}

func (f *fakeSweeper) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSweepExecutor(t *testing.T) {
	for scenario, tc := range map[string]struct {
		after     time.Duration
		batch     int
		wantAfter time.Duration
		wantBatch int
	}{
		"configured threshold": {after: time.Second, batch: 7, wantAfter: time.Second, wantBatch: 7},
		"defaults":             {wantAfter: DEFAULT_SWEEP_AFTER, wantBatch: DEFAULT_SWEEP_BATCH},
	} {
		t.Run(scenario, func(t *testing.T) {
			sweeper := &fakeSweeper{}
			var wg sync.WaitGroup
			ex := NewSweepExecutor(sweeper, 10*time.Millisecond, tc.after, tc.batch, &wg)
			require.NoError(t, ex.Start())
			require.Eventually(t, func() bool {
				return sweeper.count() >= 2
			}, 2*time.Second, 10*time.Millisecond)
			require.NoError(t, ex.Stop())
			wg.Wait()

			sweeper.mu.Lock()
			defer sweeper.mu.Unlock()
			require.Equal(t, tc.wantAfter, sweeper.calls[0])
			require.Equal(t, tc.wantBatch, sweeper.limit)
		})
	}
}
