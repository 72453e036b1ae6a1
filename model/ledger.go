package model

import (
	"fmt"
	"time"
)

type ProcessingState string

const STATE_NEW ProcessingState = "new"
const STATE_QUEUED ProcessingState = "queued"
const STATE_PROCESSED ProcessingState = "processed"
const STATE_FAILED ProcessingState = "failed"

type Direction string

const DIRECTION_INBOUND Direction = "inbound"
const DIRECTION_OUTBOUND Direction = "outbound"

type LedgerEntry struct {
	Id              string          `json:"id"`
	ExternalId      string          `json:"externalId"`
	ContactId       string          `json:"contactId"`
	Direction       Direction       `json:"direction"`
	Kind            EventKind       `json:"kind"`
	Payload         map[string]any  `json:"payload"`
	CorrelationHint string          `json:"correlationHint,omitempty"`
	ReceivedAt      time.Time       `json:"receivedAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	State           ProcessingState `json:"processingState"`
	FailureReason   string          `json:"failureReason,omitempty"`
}

var allowedTransitions = map[ProcessingState][]ProcessingState{
	STATE_NEW:       {STATE_QUEUED, STATE_PROCESSED, STATE_FAILED},
	STATE_QUEUED:    {STATE_PROCESSED, STATE_FAILED},
	STATE_FAILED:    {STATE_QUEUED},
	STATE_PROCESSED: {},
}

// CanMoveTo reports whether the processing state may move from 'from' to 'to'.
// Staying in the same state is allowed.
func CanMoveTo(from ProcessingState, to ProcessingState) bool {
	if from == to {
		return true
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsPending reports whether an inbound entry still waits to be settled.
func (e *LedgerEntry) IsPending() bool {
	return e.Direction == DIRECTION_INBOUND && (e.State == STATE_NEW || e.State == STATE_QUEUED)
}

func NewInboundEntry(id string, event *InboundEvent) *LedgerEntry {
	receivedAt := event.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	return &LedgerEntry{
		Id:              id,
		ExternalId:      event.ExternalId,
		ContactId:       event.ContactId,
		Direction:       DIRECTION_INBOUND,
		Kind:            event.Kind,
		Payload:         event.Payload,
		CorrelationHint: event.CorrelationHint,
		ReceivedAt:      receivedAt,
		UpdatedAt:       receivedAt,
		State:           STATE_NEW,
	}
}

func (e *LedgerEntry) Event() *InboundEvent {
	return &InboundEvent{
		ExternalId:      e.ExternalId,
		ContactId:       e.ContactId,
		Kind:            e.Kind,
		Payload:         e.Payload,
		CorrelationHint: e.CorrelationHint,
		ReceivedAt:      e.ReceivedAt,
	}
}

// NewOutboundEntry records one instruction produced while handling the inbound
// entry inboundId. The index keeps the external id stable across redeliveries.
func NewOutboundEntry(id string, inboundId string, index int, contactId string, ins OutboundInstruction) *LedgerEntry {
	now := time.Now().UTC()
	return &LedgerEntry{
		Id:         id,
		ExternalId: fmt.Sprintf("out:%s:%d", inboundId, index),
		ContactId:  contactId,
		Direction:  DIRECTION_OUTBOUND,
		Payload: map[string]any{
			"kind":    string(ins.Kind),
			"content": ins.RenderedContent,
		},
		CorrelationHint: ins.CorrelationHint,
		ReceivedAt:      now,
		UpdatedAt:       now,
		State:           STATE_NEW,
	}
}
