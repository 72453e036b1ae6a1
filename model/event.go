package model

import (
	"fmt"
	"strings"
	"time"
)

type EventKind string

const EVENT_EXTERNAL_REPLY EventKind = "external_reply"
const EVENT_INTERNAL_REENTER EventKind = "internal_reenter"

type EventClass string

const CLASS_DUPLICATE EventClass = "Duplicate"
const CLASS_FRESH_INPUT EventClass = "FreshInput"
const CLASS_ALREADY_CONSUMED_REENTRY EventClass = "AlreadyConsumedReentry"
const CLASS_ORDINARY_REENTRY EventClass = "OrdinaryReentry"
const CLASS_ARRIVAL EventClass = "Arrival"

// payload keys with reserved meaning
const PAYLOAD_TEXT = "text"
const PAYLOAD_FLAG = "flag"
const PAYLOAD_TIMEOUT = "__timeout__"
const PAYLOAD_STEP = "step"
const PAYLOAD_SEQ = "seq"
const PAYLOAD_HOPS = "hops"

type InboundEvent struct {
	ExternalId      string         `json:"externalId"`
	ContactId       string         `json:"contactId"`
	Kind            EventKind      `json:"kind"`
	Payload         map[string]any `json:"payload"`
	CorrelationHint string         `json:"correlationHint,omitempty"`
	ReceivedAt      time.Time      `json:"receivedAt"`
}

func (e *InboundEvent) Validate() error {
	if e.ExternalId == "" {
		return fmt.Errorf("externalId can not be empty")
	}
	if e.ContactId == "" {
		return fmt.Errorf("contactId can not be empty")
	}
	switch e.Kind {
	case EVENT_EXTERNAL_REPLY, EVENT_INTERNAL_REENTER:
	case "":
		e.Kind = EVENT_EXTERNAL_REPLY
	default:
		return fmt.Errorf("unknown event kind %s", e.Kind)
	}
	return nil
}

func (e *InboundEvent) IsTimeout() bool {
	if e.Payload == nil {
		return false
	}
	v, ok := e.Payload[PAYLOAD_TIMEOUT].(bool)
	return ok && v && strings.HasPrefix(e.ExternalId, TIMEOUT_PREFIX)
}

// TimeoutTarget returns the step and step sequence a timeout event was scheduled for.
func (e *InboundEvent) TimeoutTarget() (string, int64) {
	step, _ := e.Payload[PAYLOAD_STEP].(string)
	return step, toInt64(e.Payload[PAYLOAD_SEQ])
}

func (e *InboundEvent) Flag() string {
	if e.Payload == nil {
		return ""
	}
	flag, _ := e.Payload[PAYLOAD_FLAG].(string)
	return flag
}

// external id prefixes of events the engine produces itself
const CONTINUE_PREFIX = "continue:"
const TIMEOUT_PREFIX = "timeout:"

// IsContinuation reports whether e resumes a flow after a checkpoint.
func (e *InboundEvent) IsContinuation() bool {
	return e.Kind == EVENT_INTERNAL_REENTER && strings.HasPrefix(e.ExternalId, CONTINUE_PREFIX)
}

// Hops is the hop count a continuation carries over from the pass that
// checkpointed. Any other event starts from zero whatever its payload holds.
func (e *InboundEvent) Hops() int {
	if e.Payload == nil || !e.IsContinuation() {
		return 0
	}
	return int(toInt64(e.Payload[PAYLOAD_HOPS]))
}

// Answer is the raw user answer carried by the event.
func (e *InboundEvent) Answer() any {
	if e.Payload == nil {
		return nil
	}
	if text, ok := e.Payload[PAYLOAD_TEXT]; ok {
		return text
	}
	return e.Payload
}

func NewContinuationEvent(contactId string, instanceId string, stepSeq int64, hops int) *InboundEvent {
	return &InboundEvent{
		ExternalId: fmt.Sprintf("%s%s:%d", CONTINUE_PREFIX, instanceId, stepSeq),
		ContactId:  contactId,
		Kind:       EVENT_INTERNAL_REENTER,
		Payload:    map[string]any{PAYLOAD_HOPS: hops},
		ReceivedAt: time.Now().UTC(),
	}
}

func NewTimeoutEvent(job TimeoutJob) *InboundEvent {
	return &InboundEvent{
		ExternalId: fmt.Sprintf("%s%s:%s:%d", TIMEOUT_PREFIX, job.InstanceId, job.StepId, job.StepSeq),
		ContactId:  job.ContactId,
		Kind:       EVENT_EXTERNAL_REPLY,
		Payload: map[string]any{
			PAYLOAD_TIMEOUT: true,
			PAYLOAD_STEP:    job.StepId,
			PAYLOAD_SEQ:     job.StepSeq,
		},
		ReceivedAt: time.Now().UTC(),
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	}
	return 0
}
