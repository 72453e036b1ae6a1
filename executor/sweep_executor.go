package executor

import (
	"context"
	"sync"
	"time"

	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/util"
	"go.uber.org/zap"
)

const DEFAULT_SWEEP_AFTER = 5 * time.Minute
const DEFAULT_SWEEP_BATCH = 100

type Sweeper interface {
	SweepPending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// SweepExecutor periodically hands inbound entries that stopped moving back to
// the resume workers.
type SweepExecutor struct {
	sweeper  Sweeper
	interval time.Duration
	after    time.Duration
	batch    int
	tw       *util.TickWorker
	wg       *sync.WaitGroup
}

func NewSweepExecutor(sweeper Sweeper, interval time.Duration, after time.Duration, batch int, wg *sync.WaitGroup) *SweepExecutor {
	if interval <= 0 {
		interval = time.Minute
	}
	if after <= 0 {
		after = DEFAULT_SWEEP_AFTER
	}
	if batch <= 0 {
		batch = DEFAULT_SWEEP_BATCH
	}
	return &SweepExecutor{
		sweeper:  sweeper,
		interval: interval,
		after:    after,
		batch:    batch,
		wg:       wg,
	}
}

func (ex *SweepExecutor) Name() string {
	return "sweep-executor"
}

func (ex *SweepExecutor) Start() error {
	fn := func() {
		swept, err := ex.sweeper.SweepPending(context.Background(), ex.after, ex.batch)
		if err != nil {
			logger.Error("error while sweeping pending entries", zap.Error(err))
			return
		}
		if swept > 0 {
			logger.Info("pending entries swept", zap.Int("count", swept), zap.Duration("after", ex.after))
		}
	}
	ex.tw = util.NewTickWorker("sweep-worker", ex.interval, fn, ex.wg)
	ex.tw.Start()
	logger.Info("sweep executor started", zap.Duration("interval", ex.interval), zap.Duration("after", ex.after))
	return nil
}

func (ex *SweepExecutor) Stop() error {
	if ex.tw != nil {
		ex.tw.Stop()
	}
	return nil
}
