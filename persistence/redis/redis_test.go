package redis

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/testutil"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisPersistence(t *testing.T) {
	addr := testutil.RedisAddress(t)
	for scenario, fn := range map[string]func(t *testing.T, client rd.UniversalClient, conf Config){
		"ledger records once":              testLedgerRecordsOnce,
		"ledger states are monotonic":      testLedgerMonotonic,
		"context mutations are serialized": testContextSerialized,
		"context create and clear":         testContextCreateClear,
		"queue is fifo per partition":      testQueueFifo,
		"delay queue honours delay":        testDelayQueue,
		"flow versions are immutable":      testMetadataImmutable,
		"completed flows survive clear":    testContextCompleted,
		"expired lock can not commit":      testContextFencedCommit,
		"ledger lists pending entries":     testLedgerPending,
	} {
		t.Run(scenario, func(t *testing.T) {
			conf := Config{
				Addrs:     []string{addr},
				Namespace: "test-" + uuid.New().String(),
				LockWait:  5 * time.Second,
			}
			client := NewClient(conf)
			defer client.Close()
			fn(t, client, conf)
		})
	}
}

func testLedgerRecordsOnce(t *testing.T, client rd.UniversalClient, conf Config) {
	l := NewRedisLedger(client, conf)
	ctx := context.Background()
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	ids := map[string]bool{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry := model.NewInboundEntry(uuid.New().String(), &model.InboundEvent{
				ExternalId: "wamid-1", ContactId: "c1", Kind: model.EVENT_EXTERNAL_REPLY,
			})
			stored, wasNew, err := l.RecordIfNew(ctx, entry)
			require.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if wasNew {
				created++
			}
			ids[stored.Id] = true
		}()
	}
	wg.Wait()
	require.Equal(t, 1, created)
	require.Len(t, ids, 1)
}

func testLedgerMonotonic(t *testing.T, client rd.UniversalClient, conf Config) {
	l := NewRedisLedger(client, conf)
	ctx := context.Background()
	entry := model.NewInboundEntry("e1", &model.InboundEvent{ExternalId: "wamid-2", ContactId: "c1"})
	_, _, err := l.RecordIfNew(ctx, entry)
	require.NoError(t, err)
	require.NoError(t, l.MarkQueued(ctx, "e1"))
	require.NoError(t, l.MarkProcessed(ctx, "e1"))
	require.ErrorIs(t, l.MarkQueued(ctx, "e1"), model.ErrIllegalStateTransition)

	stored, err := l.GetByExternalId(ctx, "wamid-2")
	require.NoError(t, err)
	require.Equal(t, model.STATE_PROCESSED, stored.State)

	require.ErrorIs(t, l.MarkProcessed(ctx, "missing"), model.ErrEntryNotFound)
}

func testContextSerialized(t *testing.T, client rd.UniversalClient, conf Config) {
	s := NewRedisContextStore(client, conf)
	ctx := context.Background()
	def := &model.FlowDefinition{Name: "f", Version: 1}
	_, err := s.Create(ctx, "c1", def, "i1", "WELCOME")
	require.NoError(t, err)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Mutate(ctx, "c1", func(fc *model.FlowContext) error {
				n, _ := fc.Variables["count"].(float64)
				fc.SetVariable("count", n+1)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	fc, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, float64(10), fc.Variables["count"])
}

func testContextCreateClear(t *testing.T, client rd.UniversalClient, conf Config) {
	s := NewRedisContextStore(client, conf)
	ctx := context.Background()
	def := &model.FlowDefinition{Name: "f", Version: 1}
	_, err := s.Create(ctx, "c1", def, "i1", "WELCOME")
	require.NoError(t, err)
	_, err = s.Create(ctx, "c1", def, "i2", "WELCOME")
	require.ErrorIs(t, err, model.ErrFlowAlreadyActive)

	fc, err := s.Mutate(ctx, "c1", func(fc *model.FlowContext) error {
		fc.SetVariable("x", "y")
		return persistence.ErrNoChange
	})
	require.NoError(t, err)
	require.NotContains(t, fc.Variables, "x")

	require.NoError(t, s.Clear(ctx, "c1"))
	_, err = s.Get(ctx, "c1")
	require.ErrorIs(t, err, model.ErrNoActiveFlow)
}

func testQueueFifo(t *testing.T, client rd.UniversalClient, conf Config) {
	q := NewRedisQueue(client, conf)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, "resume", 3, []byte("a")))
	require.NoError(t, q.Push(ctx, "resume", 3, []byte("b")))
	res, err := q.Pop(ctx, "resume", 3, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, res)
	res, err = q.Pop(ctx, "resume", 3, 5)
	require.NoError(t, err)
	require.Empty(t, res)
}

func testDelayQueue(t *testing.T, client rd.UniversalClient, conf Config) {
	q := NewRedisDelayQueue(client, conf)
	ctx := context.Background()
	require.NoError(t, q.PushWithDelay(ctx, "timeout", 2*time.Second, []byte("later")))
	require.NoError(t, q.Push(ctx, "timeout", []byte("now")))
	res, err := q.Pop(ctx, "timeout")
	require.NoError(t, err)
	require.Equal(t, []string{"now"}, res)

	require.Eventually(t, func() bool {
		res, err := q.Pop(ctx, "timeout")
		return err == nil && len(res) == 1 && res[0] == "later"
	}, 5*time.Second, 100*time.Millisecond)
}

func testMetadataImmutable(t *testing.T, client rd.UniversalClient, conf Config) {
	m := NewRedisMetadataStorage(client, conf)
	ctx := context.Background()
	require.NoError(t, m.SaveFlowDefinition(ctx, model.FlowDefinition{Name: "f", Version: 1, EntryStep: "A"}))
	require.NoError(t, m.SaveFlowDefinition(ctx, model.FlowDefinition{Name: "f", Version: 2, EntryStep: "B"}))
	require.ErrorIs(t, m.SaveFlowDefinition(ctx, model.FlowDefinition{Name: "f", Version: 1}), model.ErrFlowVersionExists)

	latest, err := m.GetLatestFlowDefinition(ctx, "f")
	require.NoError(t, err)
	require.Equal(t, 2, latest.Version)

	_, err = m.GetFlowDefinition(ctx, "f", 7)
	require.ErrorIs(t, err, model.ErrFlowNotFound)
}

func testContextCompleted(t *testing.T, client rd.UniversalClient, conf Config) {
	s := NewRedisContextStore(client, conf)
	ctx := context.Background()
	def := &model.FlowDefinition{Name: "f", Version: 1}
	for i, instanceId := range []string{"i1", "i2"} {
		_, err := s.Create(ctx, "c1", def, instanceId, "WELCOME")
		require.NoError(t, err)
		_, err = s.Mutate(ctx, "c1", func(fc *model.FlowContext) error {
			fc.MarkApplied(string(rune('a' + i)))
			return persistence.ErrClearContext
		})
		require.NoError(t, err)
		_, err = s.Get(ctx, "c1")
		require.ErrorIs(t, err, model.ErrNoActiveFlow)
	}
	done, err := s.Completed(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, done.AppliedEntries)
	require.Equal(t, "i2", done.LastInstanceId)

	keys := []string{s.contactKey("c1", CONTEXT_KEY), s.contactKey("c1", LOCK_KEY), s.contactKey("c1", COMPLETED_KEY)}
	for _, key := range keys {
		require.True(t, strings.Contains(key, "{c1}"), key)
	}
}

func testContextFencedCommit(t *testing.T, client rd.UniversalClient, conf Config) {
	s := NewRedisContextStore(client, conf)
	ctx := context.Background()
	def := &model.FlowDefinition{Name: "f", Version: 1}
	_, err := s.Create(ctx, "c1", def, "i1", "WELCOME")
	require.NoError(t, err)

	token, unlock, err := s.lock(ctx, "c1")
	require.NoError(t, err)
	defer unlock()
	require.NoError(t, client.Del(ctx, s.contactKey("c1", LOCK_KEY)).Err())

	err = s.commit(ctx, "c1", token, commitDel, nil, nil)
	require.Error(t, err)
	_, err = s.Get(ctx, "c1")
	require.NoError(t, err)
}

func testLedgerPending(t *testing.T, client rd.UniversalClient, conf Config) {
	l := NewRedisLedger(client, conf)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"p3", "p1", "p2"} {
		entry := model.NewInboundEntry(id, &model.InboundEvent{
			ExternalId: "wamid-" + id, ContactId: "c1", Kind: model.EVENT_EXTERNAL_REPLY,
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		})
		_, _, err := l.RecordIfNew(ctx, entry)
		require.NoError(t, err)
	}
	require.NoError(t, l.MarkProcessed(ctx, "p1"))

	pending, err := l.ListPending(ctx, base.Add(30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "p3", pending[0].Id)
	require.Equal(t, "p2", pending[1].Id)

	require.NoError(t, l.MarkQueued(ctx, "p3"))
	pending, err = l.ListPending(ctx, base.Add(30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "p2", pending[0].Id)

	require.True(t, strings.HasPrefix(l.ledgerKey(LEDGER_ENTRY_KEY, "p2"), "{"+conf.Namespace+":LEDGER}:"))
}
