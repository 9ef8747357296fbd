package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by lookups for records that do not exist.
var ErrNotFound = errors.New("not found")

// ErrNoPriorSlot is returned by rollback when the inactive slot no longer
// holds a previously-healthy container.
var ErrNoPriorSlot = errors.New("no prior slot available to roll back to")

// ValidationError reports a malformed request, caught before any side
// effect.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ConflictError reports a registry-level collision: a port, domain or
// project name that is already taken.
type ConflictError struct {
	Resource string // "port" or "domain"
	Value    string
	Reason   string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s is already taken", e.Resource, e.Value)
}

// RangeExhaustedError reports that a reserved port range has no free port
// left. Fatal to the caller: no retry helps.
type RangeExhaustedError struct {
	Class EnvironmentClass
	Role  PortRole
	Start int
	End   int
}

func (e *RangeExhaustedError) Error() string {
	return fmt.Sprintf("no free %s port left for %s in range %d-%d", e.Role, e.Class, e.Start, e.End)
}

// TimeoutError reports that a remote command or a health-wait exceeded its
// bound.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Operation, e.Timeout)
}

// DeniedError is a protection layer hard rejection. It always names the
// single unmet gate so the caller sees the next blocking requirement.
type DeniedError struct {
	Operation OperationKind
	Level     DangerLevel
	Gate      GateKind
	Reason    string
}

func (e *DeniedError) Error() string {
	return e.Reason
}

// NeedsConfirmationError is not a failure: the operation is queued behind
// the carried ticket and proceeds once the ticket is confirmed and
// resubmitted.
type NeedsConfirmationError struct {
	Ticket *ConfirmationTicket
	Reason string
}

func (e *NeedsConfirmationError) Error() string {
	return e.Reason
}

// PartialFailureError reports a deployment where some services came up and
// at least one failed. The result lists exactly which services reached
// which state.
type PartialFailureError struct {
	Result *DeploymentResult
	Reason string
}

func (e *PartialFailureError) Error() string {
	return e.Reason
}

// TotalFailureError reports a deployment where no service reached a usable
// state.
type TotalFailureError struct {
	Result *DeploymentResult
	Reason string
}

func (e *TotalFailureError) Error() string {
	return e.Reason
}
