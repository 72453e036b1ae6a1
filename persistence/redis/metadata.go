package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/util"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const FLOW_DEF string = "FLOW_DEF"

var _ persistence.FlowDefinitionStorage = new(redisMetadataStorage)

type redisMetadataStorage struct {
	*baseDao
	flowEncoderDecoder util.EncoderDecoder[model.FlowDefinition]
}

func NewRedisMetadataStorage(client rd.UniversalClient, conf Config) *redisMetadataStorage {
	return &redisMetadataStorage{
		baseDao:            newBaseDao(client, conf.Namespace),
		flowEncoderDecoder: util.NewJsonEncoderDecoder[model.FlowDefinition](),
	}
}

func (rfd *redisMetadataStorage) SaveFlowDefinition(ctx context.Context, def model.FlowDefinition) error {
	key := rfd.getNamespaceKey(FLOW_DEF, def.Name)
	data, err := rfd.flowEncoderDecoder.Encode(def)
	if err != nil {
		return err
	}
	created, err := rfd.redisClient.HSetNX(ctx, key, strconv.Itoa(def.Version), string(data)).Result()
	if err != nil {
		logger.Error("error in saving flow definition", zap.String("flow", def.Name), zap.Int("version", def.Version), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if !created {
		return fmt.Errorf("%w: %s version %d", model.ErrFlowVersionExists, def.Name, def.Version)
	}
	return nil
}

func (rfd *redisMetadataStorage) GetFlowDefinition(ctx context.Context, name string, version int) (*model.FlowDefinition, error) {
	key := rfd.getNamespaceKey(FLOW_DEF, name)
	val, err := rfd.redisClient.HGet(ctx, key, strconv.Itoa(version)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, model.ErrFlowNotFound
		}
		logger.Error("error in getting flow definition", zap.String("flow", name), zap.Int("version", version), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rfd.flowEncoderDecoder.Decode([]byte(val))
}

func (rfd *redisMetadataStorage) GetLatestFlowDefinition(ctx context.Context, name string) (*model.FlowDefinition, error) {
	key := rfd.getNamespaceKey(FLOW_DEF, name)
	versions, err := rfd.redisClient.HKeys(ctx, key).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	latest := -1
	for _, v := range versions {
		n, err := strconv.Atoi(v)
		if err == nil && n > latest {
			latest = n
		}
	}
	if latest < 0 {
		return nil, model.ErrFlowNotFound
	}
	return rfd.GetFlowDefinition(ctx, name, latest)
}

func (rfd *redisMetadataStorage) DeleteFlowDefinition(ctx context.Context, name string, version int) error {
	key := rfd.getNamespaceKey(FLOW_DEF, name)
	if err := rfd.redisClient.HDel(ctx, key, strconv.Itoa(version)).Err(); err != nil {
		logger.Error("error in deleting flow definition", zap.String("flow", name), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}
