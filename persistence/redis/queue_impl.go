package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/persistence"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type redisQueue struct {
	*baseDao
}

var _ persistence.Queue = new(redisQueue)

func NewRedisQueue(client rd.UniversalClient, conf Config) *redisQueue {
	return &redisQueue{
		baseDao: newBaseDao(client, conf.Namespace),
	}
}

func (rq *redisQueue) Push(ctx context.Context, queueName string, partition int, message []byte) error {
	key := rq.getNamespaceKey(queueName, strconv.Itoa(partition))
	if err := rq.redisClient.RPush(ctx, key, message).Err(); err != nil {
		logger.Error("error while push to redis list", zap.String("queue", key), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rq *redisQueue) Pop(ctx context.Context, queueName string, partition int, batchSize int) ([]string, error) {
	key := rq.getNamespaceKey(queueName, strconv.Itoa(partition))
	res, err := rq.redisClient.LPopCount(ctx, key, batchSize).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return []string{}, nil
		}
		logger.Error("error while pop from redis list", zap.String("queue", key), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return res, nil
}
