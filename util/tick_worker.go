package util

import (
	"sync"
	"time"

	"github.com/mohitkumar/chatflow/logger"
	"go.uber.org/zap"
)

// TickWorker calls fn every interval on its own goroutine until stopped. A
// panicking tick is logged and the next tick runs as usual.
type TickWorker struct {
	name     string
	interval time.Duration
	fn       func()
	wg       *sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

func NewTickWorker(name string, interval time.Duration, fn func(), wg *sync.WaitGroup) *TickWorker {
	return &TickWorker{
		name:     name,
		interval: interval,
		fn:       fn,
		wg:       wg,
		stop:     make(chan struct{}),
	}
}

func (tw *TickWorker) Start() {
	ticker := time.NewTicker(tw.interval)
	tw.wg.Add(1)
	go func() {
		defer tw.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				tw.tick()
			case <-tw.stop:
				logger.Info("stopping tick worker", zap.String("worker", tw.name))
				return
			}
		}
	}()
	logger.Info("tick worker started", zap.String("worker", tw.name), zap.Duration("interval", tw.interval))
}

func (tw *TickWorker) tick() {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("tick worker panicked", zap.String("worker", tw.name), zap.Any("panic", r))
		}
	}()
	tw.fn()
}

// Stop may be called more than once.
func (tw *TickWorker) Stop() {
	tw.stopOnce.Do(func() {
		close(tw.stop)
	})
}
