package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	db, err := Open(filepath.Join(t.TempDir(), "chatflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSqliteLedger(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, l *sqliteLedger){
		"concurrent record yields one new entry": testConcurrentRecord,
		"state transitions are monotonic":        testMonotonicState,
		"unknown entry":                          testUnknownEntry,
		"pending entries oldest first":           testListPending,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, NewLedger(openTestDB(t)))
		})
	}
}

func newEntry(id string, externalId string) *model.LedgerEntry {
	return model.NewInboundEntry(id, &model.InboundEvent{
		ExternalId: externalId,
		ContactId:  "c1",
		Kind:       model.EVENT_EXTERNAL_REPLY,
		Payload:    map[string]any{"text": "hi"},
	})
}

func testConcurrentRecord(t *testing.T, l *sqliteLedger) {
	ctx := context.Background()
	var wg sync.WaitGroup
	var mu sync.Mutex
	newCount := 0
	ids := make(map[string]bool)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, wasNew, err := l.RecordIfNew(ctx, newEntry(string(rune('a'+i)), "wamid-1"))
			require.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if wasNew {
				newCount++
			}
			ids[entry.Id] = true
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, newCount)
	require.Len(t, ids, 1)

	for id := range ids {
		byExternal, err := l.GetByExternalId(ctx, "wamid-1")
		require.NoError(t, err)
		require.Equal(t, id, byExternal.Id)
	}
}

func testMonotonicState(t *testing.T, l *sqliteLedger) {
	ctx := context.Background()
	_, wasNew, err := l.RecordIfNew(ctx, newEntry("e1", "wamid-2"))
	require.NoError(t, err)
	require.True(t, wasNew)

	require.NoError(t, l.MarkQueued(ctx, "e1"))
	require.NoError(t, l.MarkFailed(ctx, "e1", "store down"))
	require.NoError(t, l.MarkQueued(ctx, "e1"))
	require.NoError(t, l.MarkProcessed(ctx, "e1"))
	require.ErrorIs(t, l.MarkQueued(ctx, "e1"), model.ErrIllegalStateTransition)

	stored, err := l.Get(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, model.STATE_PROCESSED, stored.State)
	require.Equal(t, "store down", stored.FailureReason)
}

func testListPending(t *testing.T, l *sqliteLedger) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"p3", "p1", "p2"} {
		entry := newEntry(id, "wamid-"+id)
		entry.ReceivedAt = base.Add(time.Duration(i) * time.Minute)
		entry.UpdatedAt = entry.ReceivedAt
		_, _, err := l.RecordIfNew(ctx, entry)
		require.NoError(t, err)
	}
	require.NoError(t, l.MarkFailed(ctx, "p1", "boom"))

	pending, err := l.ListPending(ctx, base.Add(30*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "p3", pending[0].Id)
	require.Equal(t, "p2", pending[1].Id)

	require.NoError(t, l.MarkQueued(ctx, "p3"))
	pending, err = l.ListPending(ctx, base.Add(30*time.Minute), 5)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "p2", pending[0].Id)
}

func testUnknownEntry(t *testing.T, l *sqliteLedger) {
	ctx := context.Background()
	_, err := l.Get(ctx, "missing")
	require.ErrorIs(t, err, model.ErrEntryNotFound)
	require.ErrorIs(t, l.MarkProcessed(ctx, "missing"), model.ErrEntryNotFound)
}

func TestSqliteContextStore(t *testing.T) {
	def := &model.FlowDefinition{Name: "onboarding", Version: 1, EntryStep: "WELCOME"}
	for scenario, fn := range map[string]func(t *testing.T, s *sqliteContextStore){
		"create is create-if-absent": func(t *testing.T, s *sqliteContextStore) {
			ctx := context.Background()
			_, err := s.Create(ctx, "c1", def, "i1", "WELCOME")
			require.NoError(t, err)
			_, err = s.Create(ctx, "c1", def, "i2", "WELCOME")
			require.ErrorIs(t, err, model.ErrFlowAlreadyActive)
		},
		"mutate commits changes": func(t *testing.T, s *sqliteContextStore) {
			ctx := context.Background()
			_, err := s.Create(ctx, "c1", def, "i1", "WELCOME")
			require.NoError(t, err)
			_, err = s.Mutate(ctx, "c1", func(fc *model.FlowContext) error {
				fc.SetVariable("name", "Jane")
				fc.MoveTo("CONFIRM")
				return nil
			})
			require.NoError(t, err)
			fc, err := s.Get(ctx, "c1")
			require.NoError(t, err)
			require.Equal(t, "CONFIRM", fc.ActiveStep)
			require.Equal(t, "Jane", fc.Variables["name"])
		},
		"failed mutation writes nothing": func(t *testing.T, s *sqliteContextStore) {
			ctx := context.Background()
			_, err := s.Create(ctx, "c1", def, "i1", "WELCOME")
			require.NoError(t, err)
			boom := errors.New("boom")
			_, err = s.Mutate(ctx, "c1", func(fc *model.FlowContext) error {
				fc.MoveTo("CONFIRM")
				return boom
			})
			require.ErrorIs(t, err, boom)
			_, err = s.Mutate(ctx, "c1", func(fc *model.FlowContext) error {
				fc.MoveTo("DONE")
				return persistence.ErrNoChange
			})
			require.NoError(t, err)
			fc, err := s.Get(ctx, "c1")
			require.NoError(t, err)
			require.Equal(t, "WELCOME", fc.ActiveStep)
		},
		"clear context from mutation": func(t *testing.T, s *sqliteContextStore) {
			ctx := context.Background()
			_, err := s.Create(ctx, "c1", def, "i1", "WELCOME")
			require.NoError(t, err)
			_, err = s.Mutate(ctx, "c1", func(fc *model.FlowContext) error {
				return persistence.ErrClearContext
			})
			require.NoError(t, err)
			_, err = s.Get(ctx, "c1")
			require.ErrorIs(t, err, model.ErrNoActiveFlow)
		},
		"completed flows keep applied entries": func(t *testing.T, s *sqliteContextStore) {
			ctx := context.Background()
			for i, instanceId := range []string{"i1", "i2"} {
				_, err := s.Create(ctx, "c1", def, instanceId, "WELCOME")
				require.NoError(t, err)
				_, err = s.Mutate(ctx, "c1", func(fc *model.FlowContext) error {
					fc.MarkApplied(string(rune('a' + i)))
					return persistence.ErrClearContext
				})
				require.NoError(t, err)
			}
			done, err := s.Completed(ctx, "c1")
			require.NoError(t, err)
			require.Equal(t, []string{"a", "b"}, done.AppliedEntries)
			require.Equal(t, "i2", done.LastInstanceId)

			done, err = s.Completed(ctx, "c2")
			require.NoError(t, err)
			require.Empty(t, done.AppliedEntries)
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, NewContextStore(openTestDB(t)))
		})
	}
}
