package executor

import (
	"context"

	"github.com/mohitkumar/chatflow/engine"
	"github.com/mohitkumar/chatflow/model"
)

type Executor interface {
	Start() error
	Stop() error
	Name() string
}

// Engine is the part of the engine the executors drive.
type Engine interface {
	HandleJob(ctx context.Context, job model.ResumeJob) error
	Submit(ctx context.Context, event *model.InboundEvent) (*engine.Outcome, error)
}

type PartitionSource interface {
	GetPartitions() []int
}

type JobPusher interface {
	Push(ctx context.Context, job model.ResumeJob) error
}
