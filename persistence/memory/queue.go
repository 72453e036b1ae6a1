package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mohitkumar/chatflow/persistence"
)

var _ persistence.Queue = new(queue)

type queue struct {
	mu    sync.Mutex
	lists map[string][]string
}

func NewQueue() *queue {
	return &queue{lists: make(map[string][]string)}
}

func (q *queue) Push(ctx context.Context, queueName string, partition int, message []byte) error {
	key := fmt.Sprintf("%s:%d", queueName, partition)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lists[key] = append(q.lists[key], string(message))
	return nil
}

func (q *queue) Pop(ctx context.Context, queueName string, partition int, batchSize int) ([]string, error) {
	key := fmt.Sprintf("%s:%d", queueName, partition)
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.lists[key]
	if batchSize > len(list) {
		batchSize = len(list)
	}
	out := make([]string, batchSize)
	copy(out, list[:batchSize])
	q.lists[key] = list[batchSize:]
	return out, nil
}

var _ persistence.DelayQueue = new(delayQueue)

type delayed struct {
	due     time.Time
	message string
}

type delayQueue struct {
	mu     sync.Mutex
	queues map[string][]delayed
	now    func() time.Time
}

func NewDelayQueue() *delayQueue {
	return &delayQueue{
		queues: make(map[string][]delayed),
		now:    time.Now,
	}
}

func (q *delayQueue) Push(ctx context.Context, queueName string, message []byte) error {
	return q.PushWithDelay(ctx, queueName, 0, message)
}

func (q *delayQueue) PushWithDelay(ctx context.Context, queueName string, delay time.Duration, message []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := append(q.queues[queueName], delayed{due: q.now().Add(delay), message: string(message)})
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].due.Before(items[j].due)
	})
	q.queues[queueName] = items
	return nil
}

func (q *delayQueue) Pop(ctx context.Context, queueName string) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	items := q.queues[queueName]
	i := 0
	out := make([]string, 0)
	for i < len(items) && !items[i].due.After(now) {
		out = append(out, items[i].message)
		i++
	}
	q.queues[queueName] = items[i:]
	return out, nil
}
