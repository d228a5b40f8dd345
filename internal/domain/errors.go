package domain

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by the membership coordinator. Every precondition
// failure is detected before any mutation and reported with one of these.
var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrAlreadyMember = errors.New("already a member")
	ErrNotAMember    = errors.New("not a member")
	ErrTeamFull      = errors.New("team is full")
	ErrLimitExceeded = errors.New("limit exceeded")
	ErrLockTimeout   = errors.New("lock acquisition timed out")
)

// InvalidStateError reports a request rejected against current entity state,
// such as joining an expired team or presenting a wrong secret-team password.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return "invalid state: " + e.Reason
}

// InvalidState builds an InvalidStateError.
func InvalidState(reason string) error {
	return &InvalidStateError{Reason: reason}
}

// SystemError marks a detected internal inconsistency. It indicates the
// implementation, not the caller, is at fault and must never be swallowed.
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string {
	if e.Err == nil {
		return "system error: " + e.Op
	}
	return fmt.Sprintf("system error: %s: %v", e.Op, e.Err)
}

func (e *SystemError) Unwrap() error { return e.Err }

// Systemf builds a SystemError without a cause.
func Systemf(format string, args ...any) error {
	return &SystemError{Op: fmt.Sprintf(format, args...)}
}
