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

// TimeoutExecutor turns due step timers into timeout events. The interpreter
// drops timeouts for a step visit that is already over.
type TimeoutExecutor struct {
	engine     Engine
	delayQueue persistence.DelayQueue
	interval   time.Duration
	encDec     util.EncoderDecoder[model.TimeoutJob]
	tw         *util.TickWorker
	wg         *sync.WaitGroup
}

func NewTimeoutExecutor(engine Engine, delayQueue persistence.DelayQueue, interval time.Duration, wg *sync.WaitGroup) *TimeoutExecutor {
	if interval <= 0 {
		interval = time.Second
	}
	return &TimeoutExecutor{
		engine:     engine,
		delayQueue: delayQueue,
		interval:   interval,
		encDec:     util.NewJsonEncoderDecoder[model.TimeoutJob](),
		wg:         wg,
	}
}

func (ex *TimeoutExecutor) Name() string {
	return "timeout-executor"
}

func (ex *TimeoutExecutor) Start() error {
	fn := func() {
		ctx := context.Background()
		res, err := ex.delayQueue.Pop(ctx, persistence.TIMEOUT_QUEUE)
		if err != nil {
			logger.Error("error while polling timeout queue", zap.Error(err))
			return
		}
		for _, r := range res {
			job, err := ex.encDec.Decode([]byte(r))
			if err != nil {
				logger.Error("can not decode timeout job", zap.Error(err))
				continue
			}
			if _, err := ex.engine.Submit(ctx, model.NewTimeoutEvent(*job)); err != nil {
				logger.Error("error in submitting timeout", zap.String("contact", job.ContactId), zap.String("step", job.StepId), zap.Error(err))
			}
		}
	}
	ex.tw = util.NewTickWorker("timeout-worker", ex.interval, fn, ex.wg)
	ex.tw.Start()
	logger.Info("timeout executor started")
	return nil
}

func (ex *TimeoutExecutor) Stop() error {
	if ex.tw != nil {
		ex.tw.Stop()
	}
	return nil
}
