package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/persistence"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type redisDelayQueue struct {
	*baseDao
}

var _ persistence.DelayQueue = new(redisDelayQueue)

func NewRedisDelayQueue(client rd.UniversalClient, conf Config) *redisDelayQueue {
	return &redisDelayQueue{
		baseDao: newBaseDao(client, conf.Namespace),
	}
}

func (rq *redisDelayQueue) Push(ctx context.Context, queueName string, message []byte) error {
	return rq.PushWithDelay(ctx, queueName, 0, message)
}

func (rq *redisDelayQueue) PushWithDelay(ctx context.Context, queueName string, delay time.Duration, message []byte) error {
	key := rq.getNamespaceKey(queueName)
	member := rd.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: message,
	}
	if err := rq.redisClient.ZAdd(ctx, key, member).Err(); err != nil {
		logger.Error("error while push to redis sorted set", zap.String("queue", key), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rq *redisDelayQueue) Pop(ctx context.Context, queueName string) ([]string, error) {
	key := rq.getNamespaceKey(queueName)
	upto := strconv.FormatInt(time.Now().UnixMilli(), 10)
	var zr *rd.StringSliceCmd
	_, err := rq.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		zr = pipe.ZRangeByScore(ctx, key, &rd.ZRangeBy{Min: "0", Max: upto})
		pipe.ZRemRangeByScore(ctx, key, "0", upto)
		return nil
	})
	if err != nil && !errors.Is(err, rd.Nil) {
		logger.Error("error while pop from redis sorted set", zap.String("queue", key), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	res, err := zr.Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return []string{}, nil
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return res, nil
}
