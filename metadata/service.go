package metadata

import (
	"context"
	"errors"

	"github.com/mohitkumar/chatflow/cache"
	"github.com/mohitkumar/chatflow/flow"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"go.uber.org/zap"
)

// Service validates, stores and compiles flow definitions. A saved version is
// never changed, so compiled flows are cached without expiry.
type Service struct {
	storage persistence.FlowDefinitionStorage
	cache   *cache.FlowCache
	actions flow.ActionLookup
	maxHops int
}

func NewService(storage persistence.FlowDefinitionStorage, actions flow.ActionLookup, maxHops int) *Service {
	return &Service{
		storage: storage,
		cache:   cache.NewFlowCache(),
		actions: actions,
		maxHops: maxHops,
	}
}

func (s *Service) ValidateFlow(def model.FlowDefinition) error {
	return flow.Validate(&def, s.actions)
}

func (s *Service) SaveFlow(ctx context.Context, def model.FlowDefinition) error {
	if err := s.ValidateFlow(def); err != nil {
		return err
	}
	if err := s.storage.SaveFlowDefinition(ctx, def); err != nil {
		return err
	}
	logger.Info("flow saved", zap.String("flow", def.Name), zap.Int("version", def.Version))
	return nil
}

func (s *Service) GetFlowDefinition(ctx context.Context, name string, version int) (*model.FlowDefinition, error) {
	return s.storage.GetFlowDefinition(ctx, name, version)
}

func (s *Service) GetLatestFlowDefinition(ctx context.Context, name string) (*model.FlowDefinition, error) {
	return s.storage.GetLatestFlowDefinition(ctx, name)
}

// GetFlow returns the compiled flow for name and version.
func (s *Service) GetFlow(ctx context.Context, name string, version int) (*flow.Flow, error) {
	if fl, ok := s.cache.GetFlow(name, version); ok {
		return fl, nil
	}
	def, err := s.storage.GetFlowDefinition(ctx, name, version)
	if err != nil {
		return nil, err
	}
	return s.compile(def)
}

func (s *Service) GetLatestFlow(ctx context.Context, name string) (*flow.Flow, error) {
	def, err := s.storage.GetLatestFlowDefinition(ctx, name)
	if err != nil {
		return nil, err
	}
	if fl, ok := s.cache.GetFlow(def.Name, def.Version); ok {
		return fl, nil
	}
	return s.compile(def)
}

func (s *Service) DeleteFlow(ctx context.Context, name string, version int) error {
	s.cache.DeleteFlow(name, version)
	return s.storage.DeleteFlowDefinition(ctx, name, version)
}

func (s *Service) compile(def *model.FlowDefinition) (*flow.Flow, error) {
	fl, err := flow.Convert(def, s.actions, s.maxHops)
	if err != nil {
		logger.Error("stored flow does not compile", zap.String("flow", def.Name), zap.Int("version", def.Version), zap.Error(err))
		return nil, err
	}
	s.cache.SaveFlow(fl)
	return fl, nil
}

func isVersionExists(err error) bool {
	return errors.Is(err, model.ErrFlowVersionExists)
}
