package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
)

var _ persistence.FlowDefinitionStorage = new(metadataStorage)

type metadataStorage struct {
	mu    sync.RWMutex
	flows map[string]map[int]model.FlowDefinition
}

func NewMetadataStorage() *metadataStorage {
	return &metadataStorage{flows: make(map[string]map[int]model.FlowDefinition)}
}

func (m *metadataStorage) SaveFlowDefinition(ctx context.Context, def model.FlowDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions, ok := m.flows[def.Name]
	if !ok {
		versions = make(map[int]model.FlowDefinition)
		m.flows[def.Name] = versions
	}
	if _, exists := versions[def.Version]; exists {
		return fmt.Errorf("%w: %s version %d", model.ErrFlowVersionExists, def.Name, def.Version)
	}
	versions[def.Version] = def
	return nil
}

func (m *metadataStorage) GetFlowDefinition(ctx context.Context, name string, version int) (*model.FlowDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.flows[name][version]
	if !ok {
		return nil, model.ErrFlowNotFound
	}
	return &def, nil
}

func (m *metadataStorage) GetLatestFlowDefinition(ctx context.Context, name string) (*model.FlowDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	latest := -1
	for v := range m.flows[name] {
		if v > latest {
			latest = v
		}
	}
	if latest < 0 {
		return nil, model.ErrFlowNotFound
	}
	def := m.flows[name][latest]
	return &def, nil
}

func (m *metadataStorage) DeleteFlowDefinition(ctx context.Context, name string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flows[name], version)
	return nil
}
