package outbound

import (
	"context"
	"sync"

	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"go.uber.org/zap"
)

// Sink hands rendered instructions to the transport. Delivery happens only after
// the step that produced them is committed.
type Sink interface {
	Deliver(ctx context.Context, contactId string, instructions []model.OutboundInstruction) error
}

// LogSink writes instructions to the process log. Used when no transport is
// configured.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Deliver(ctx context.Context, contactId string, instructions []model.OutboundInstruction) error {
	for _, ins := range instructions {
		logger.Info("outbound instruction", zap.String("contact", contactId), zap.String("kind", string(ins.Kind)),
			zap.String("content", ins.RenderedContent), zap.String("correlationHint", ins.CorrelationHint))
	}
	return nil
}

type Delivery struct {
	ContactId   string
	Instruction model.OutboundInstruction
}

// RecordingSink keeps every delivered instruction in memory.
type RecordingSink struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Deliver(ctx context.Context, contactId string, instructions []model.OutboundInstruction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ins := range instructions {
		s.deliveries = append(s.deliveries, Delivery{ContactId: contactId, Instruction: ins})
	}
	return nil
}

func (s *RecordingSink) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.deliveries...)
}

// Contents returns the rendered content delivered to contactId in order.
func (s *RecordingSink) Contents(contactId string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	contents := make([]string, 0)
	for _, d := range s.deliveries {
		if d.ContactId == contactId {
			contents = append(contents, d.Instruction.RenderedContent)
		}
	}
	return contents
}
