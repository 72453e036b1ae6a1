package util

import (
	"context"
	"sync"

	"github.com/mohitkumar/chatflow/logger"
	"go.uber.org/zap"
)

// Worker runs handler for every task sent to it, one task at a time.
type Worker[T any] struct {
	name     string
	stop     chan struct{}
	wg       *sync.WaitGroup
	handler  func(T) error
	taskChan chan T
}

func NewWorker[T any](name string, wg *sync.WaitGroup, handler func(T) error, capacity int) *Worker[T] {
	return &Worker[T]{
		taskChan: make(chan T, capacity),
		name:     name,
		wg:       wg,
		stop:     make(chan struct{}),
		handler:  handler,
	}
}

func (w *Worker[T]) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case task := <-w.taskChan:
				if err := w.handler(task); err != nil {
					logger.Error("error in executing task in worker", zap.String("worker", w.name), zap.Any("task", task), zap.Error(err))
				}
			case <-w.stop:
				logger.Info("stopping worker", zap.String("worker", w.name))
				return
			}
		}
	}()
}

// Submit blocks until the task is accepted, the worker stops or ctx is done.
func (w *Worker[T]) Submit(ctx context.Context, task T) bool {
	select {
	case w.taskChan <- task:
		return true
	case <-w.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (w *Worker[T]) Name() string {
	return w.name
}

func (w *Worker[T]) Stop() {
	close(w.stop)
}
