package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/util"
	"go.uber.org/zap"
)

type ResumeExecutorConfig struct {
	Lanes        int
	Capacity     int
	BatchSize    int
	PollInterval time.Duration
}

// ResumeExecutor polls the resume queue of every local partition and hands jobs
// to a fixed set of lanes. A partition always maps to the same lane so events of
// one contact are handled in order.
type ResumeExecutor struct {
	engine     Engine
	queue      persistence.Queue
	partitions PartitionSource
	conf       ResumeExecutorConfig
	encDec     util.EncoderDecoder[model.ResumeJob]
	lanes      []*util.Worker[model.ResumeJob]
	tw         *util.TickWorker
	wg         *sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewResumeExecutor(engine Engine, queue persistence.Queue, partitions PartitionSource, conf ResumeExecutorConfig, wg *sync.WaitGroup) *ResumeExecutor {
	if conf.Lanes <= 0 {
		conf.Lanes = 1
	}
	if conf.Capacity <= 0 {
		conf.Capacity = 100
	}
	if conf.BatchSize <= 0 {
		conf.BatchSize = 50
	}
	if conf.PollInterval <= 0 {
		conf.PollInterval = 100 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ResumeExecutor{
		engine:     engine,
		queue:      queue,
		partitions: partitions,
		conf:       conf,
		encDec:     util.NewJsonEncoderDecoder[model.ResumeJob](),
		wg:         wg,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (ex *ResumeExecutor) Name() string {
	return "resume-executor"
}

func (ex *ResumeExecutor) Start() error {
	for i := 0; i < ex.conf.Lanes; i++ {
		lane := util.NewWorker(fmt.Sprintf("resume-lane-%d", i), ex.wg, func(job model.ResumeJob) error {
			return ex.engine.HandleJob(ex.ctx, job)
		}, ex.conf.Capacity)
		lane.Start()
		ex.lanes = append(ex.lanes, lane)
	}
	ex.tw = util.NewTickWorker("resume-poller", ex.conf.PollInterval, ex.poll, ex.wg)
	ex.tw.Start()
	logger.Info("resume executor started", zap.Int("lanes", ex.conf.Lanes))
	return nil
}

func (ex *ResumeExecutor) poll() {
	for _, partition := range ex.partitions.GetPartitions() {
		msgs, err := ex.queue.Pop(ex.ctx, persistence.RESUME_QUEUE, partition, ex.conf.BatchSize)
		if err != nil {
			logger.Error("error while polling resume queue", zap.Int("partition", partition), zap.Error(err))
			continue
		}
		lane := ex.lanes[partition%len(ex.lanes)]
		for _, msg := range msgs {
			job, err := ex.encDec.Decode([]byte(msg))
			if err != nil {
				logger.Error("can not decode resume job", zap.String("message", msg), zap.Error(err))
				continue
			}
			if !lane.Submit(ex.ctx, *job) {
				logger.Warn("resume lane stopped, job dropped", zap.String("entryId", job.EntryId), zap.String("contact", job.ContactId))
			}
		}
	}
}

func (ex *ResumeExecutor) Stop() error {
	if ex.tw != nil {
		ex.tw.Stop()
	}
	ex.cancel()
	for _, lane := range ex.lanes {
		lane.Stop()
	}
	return nil
}
