package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
)

var _ persistence.Ledger = new(ledger)

type ledger struct {
	mu         sync.Mutex
	entries    map[string]model.LedgerEntry
	byExternal map[string]string
}

func NewLedger() *ledger {
	return &ledger{
		entries:    make(map[string]model.LedgerEntry),
		byExternal: make(map[string]string),
	}
}

func (l *ledger) RecordIfNew(ctx context.Context, entry *model.LedgerEntry) (*model.LedgerEntry, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id, ok := l.byExternal[entry.ExternalId]; ok {
		existing := l.entries[id]
		return &existing, false, nil
	}
	l.byExternal[entry.ExternalId] = entry.Id
	l.entries[entry.Id] = *entry
	stored := l.entries[entry.Id]
	return &stored, true, nil
}

func (l *ledger) Get(ctx context.Context, id string) (*model.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[id]
	if !ok {
		return nil, model.ErrEntryNotFound
	}
	return &entry, nil
}

func (l *ledger) GetByExternalId(ctx context.Context, externalId string) (*model.LedgerEntry, error) {
	l.mu.Lock()
	id, ok := l.byExternal[externalId]
	l.mu.Unlock()
	if !ok {
		return nil, model.ErrEntryNotFound
	}
	return l.Get(ctx, id)
}

func (l *ledger) MarkQueued(ctx context.Context, id string) error {
	return l.mark(id, model.STATE_QUEUED, "")
}

func (l *ledger) MarkProcessed(ctx context.Context, id string) error {
	return l.mark(id, model.STATE_PROCESSED, "")
}

func (l *ledger) MarkFailed(ctx context.Context, id string, reason string) error {
	return l.mark(id, model.STATE_FAILED, reason)
}

func (l *ledger) mark(id string, state model.ProcessingState, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[id]
	if !ok {
		return model.ErrEntryNotFound
	}
	changed, err := persistence.ApplyState(&entry, state, reason)
	if err != nil {
		return err
	}
	if changed {
		l.entries[id] = entry
	}
	return nil
}

func (l *ledger) ListPending(ctx context.Context, before time.Time, limit int) ([]*model.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pending := make([]*model.LedgerEntry, 0)
	for _, entry := range l.entries {
		if entry.IsPending() && !entry.UpdatedAt.After(before) {
			e := entry
			pending = append(pending, &e)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].UpdatedAt.Before(pending[j].UpdatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}
