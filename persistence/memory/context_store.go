package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/util"
)

var _ persistence.ContextStore = new(contextStore)

type contextStore struct {
	mu             sync.RWMutex
	contexts       map[string][]byte
	completed      map[string]model.CompletedFlows
	locks          *util.KeyedMutex
	encoderDecoder util.EncoderDecoder[model.FlowContext]
}

func NewContextStore() *contextStore {
	return &contextStore{
		contexts:       make(map[string][]byte),
		completed:      make(map[string]model.CompletedFlows),
		locks:          util.NewKeyedMutex(),
		encoderDecoder: util.NewJsonEncoderDecoder[model.FlowContext](),
	}
}

func (s *contextStore) Get(ctx context.Context, contactId string) (*model.FlowContext, error) {
	s.mu.RLock()
	data, ok := s.contexts[contactId]
	s.mu.RUnlock()
	if !ok {
		return nil, model.ErrNoActiveFlow
	}
	return s.encoderDecoder.Decode(data)
}

func (s *contextStore) Create(ctx context.Context, contactId string, def *model.FlowDefinition, instanceId string, entryStep string) (*model.FlowContext, error) {
	unlock := s.locks.Lock(contactId)
	defer unlock()
	s.mu.RLock()
	_, exists := s.contexts[contactId]
	s.mu.RUnlock()
	if exists {
		return nil, model.ErrFlowAlreadyActive
	}
	fc := model.NewFlowContext(contactId, def, instanceId, entryStep)
	if err := s.put(contactId, fc); err != nil {
		return nil, err
	}
	return fc, nil
}

func (s *contextStore) Mutate(ctx context.Context, contactId string, fn persistence.MutateFunc) (*model.FlowContext, error) {
	unlock := s.locks.Lock(contactId)
	defer unlock()
	current, err := s.Get(ctx, contactId)
	if err != nil {
		return nil, err
	}
	working, err := s.Get(ctx, contactId)
	if err != nil {
		return nil, err
	}
	err = fn(working)
	switch {
	case errors.Is(err, persistence.ErrNoChange):
		return current, nil
	case errors.Is(err, persistence.ErrClearContext):
		s.mu.Lock()
		done := s.completed[contactId]
		done.AppliedEntries = append([]string(nil), done.AppliedEntries...)
		done.Add(working)
		s.completed[contactId] = done
		delete(s.contexts, contactId)
		s.mu.Unlock()
		return working, nil
	case err != nil:
		return nil, err
	}
	working.UpdatedAt = time.Now().UTC()
	if err := s.put(contactId, working); err != nil {
		return nil, err
	}
	return working, nil
}

func (s *contextStore) Clear(ctx context.Context, contactId string) error {
	unlock := s.locks.Lock(contactId)
	defer unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, contactId)
	return nil
}

func (s *contextStore) Completed(ctx context.Context, contactId string) (*model.CompletedFlows, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	done, ok := s.completed[contactId]
	if !ok {
		return &model.CompletedFlows{ContactId: contactId}, nil
	}
	done.AppliedEntries = append([]string(nil), done.AppliedEntries...)
	return &done, nil
}

func (s *contextStore) put(contactId string, fc *model.FlowContext) error {
	data, err := s.encoderDecoder.Encode(*fc)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[contactId] = data
	return nil
}
