package model

import (
	"errors"
	"fmt"
)

var ErrDuplicateEvent = errors.New("duplicate event")
var ErrNoActiveFlow = errors.New("no active flow")
var ErrFlowAlreadyActive = errors.New("flow already active")
var ErrValidationFailed = errors.New("validation failed")
var ErrTransitionDeadEnd = errors.New("transition dead end")
var ErrMaxHopExceeded = errors.New("max hop exceeded")
var ErrStepActionFailed = errors.New("step action failed")
var ErrFlowNotFound = errors.New("flow not found")
var ErrFlowVersionExists = errors.New("flow version already exists")
var ErrEntryNotFound = errors.New("ledger entry not found")
var ErrIllegalStateTransition = errors.New("illegal processing state transition")
var ErrFlowHalted = errors.New("flow halted")
var ErrFlowNotHalted = errors.New("flow is not halted")

type StepActionFailedError struct {
	ContactId string
	StepId    string
	Action    string
	Cause     error
}

func (e *StepActionFailedError) Error() string {
	return fmt.Sprintf("action %s failed at step %s for contact %s: %v", e.Action, e.StepId, e.ContactId, e.Cause)
}

func (e *StepActionFailedError) Unwrap() []error {
	return []error{ErrStepActionFailed, e.Cause}
}

type MaxHopExceededError struct {
	ContactId string
	StepId    string
	MaxHops   int
}

func (e *MaxHopExceededError) Error() string {
	return fmt.Sprintf("max hop count %d exceeded at step %s for contact %s", e.MaxHops, e.StepId, e.ContactId)
}

func (e *MaxHopExceededError) Is(target error) bool {
	return target == ErrMaxHopExceeded
}

type ValidationError struct {
	StepId string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("answer for step %s is invalid: %s", e.StepId, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
