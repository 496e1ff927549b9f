package plan

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProfile is returned when a requested profile matches no
	// service in the stack.
	ErrUnknownProfile = errors.New("unknown profile")

	// ErrUnresolvedParameter is returned when a referenced parameter has no
	// flag value, no environment value, and no default.
	ErrUnresolvedParameter = errors.New("parameter has no value")

	// ErrUndeclaredOverride is returned when a flag override names a
	// parameter the stack file does not declare.
	ErrUndeclaredOverride = errors.New("override for undeclared parameter")
)

// PlanError wraps errors with the subject that caused them.
type PlanError struct {
	Subject string // profile or parameter name
	Message string
	Err     error
}

func (e *PlanError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s: %s", e.Subject, e.Message)
	}
	return e.Message
}

func (e *PlanError) Unwrap() error {
	return e.Err
}

// NewPlanError creates a new PlanError.
func NewPlanError(subject, message string, err error) *PlanError {
	return &PlanError{Subject: subject, Message: message, Err: err}
}
