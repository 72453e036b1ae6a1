package executor

import (
	"context"
	"sync"
	"time"

	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/util"
	"go.uber.org/zap"
)

// RetryExecutor moves resume jobs whose retry delay has passed back onto the
// resume queue.
type RetryExecutor struct {
	delayQueue persistence.DelayQueue
	pusher     JobPusher
	interval   time.Duration
	encDec     util.EncoderDecoder[model.ResumeJob]
	tw         *util.TickWorker
	wg         *sync.WaitGroup
}

func NewRetryExecutor(delayQueue persistence.DelayQueue, pusher JobPusher, interval time.Duration, wg *sync.WaitGroup) *RetryExecutor {
	if interval <= 0 {
		interval = time.Second
	}
	return &RetryExecutor{
		delayQueue: delayQueue,
		pusher:     pusher,
		interval:   interval,
		encDec:     util.NewJsonEncoderDecoder[model.ResumeJob](),
		wg:         wg,
	}
}

func (ex *RetryExecutor) Name() string {
	return "retry-executor"
}

func (ex *RetryExecutor) Start() error {
	fn := func() {
		ctx := context.Background()
		res, err := ex.delayQueue.Pop(ctx, persistence.RESUME_RETRY_QUEUE)
		if err != nil {
			logger.Error("error while polling retry queue", zap.Error(err))
			return
		}
		for _, r := range res {
			job, err := ex.encDec.Decode([]byte(r))
			if err != nil {
				logger.Error("can not decode resume job", zap.Error(err))
				continue
			}
			if err := ex.pusher.Push(ctx, *job); err != nil {
				logger.Error("error in requeueing resume job", zap.String("entryId", job.EntryId), zap.Error(err))
			}
		}
	}
	ex.tw = util.NewTickWorker("retry-worker", ex.interval, fn, ex.wg)
	ex.tw.Start()
	logger.Info("retry executor started")
	return nil
}

func (ex *RetryExecutor) Stop() error {
	if ex.tw != nil {
		ex.tw.Stop()
	}
	return nil
}
