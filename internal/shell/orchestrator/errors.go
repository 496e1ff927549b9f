package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrPartialStartupFailure is returned when some selected services
	// failed to become ready while others succeeded.
	ErrPartialStartupFailure = errors.New("partial startup failure")
)

// StartupError reports which services failed during an up cycle. The
// services that did start remain running.
type StartupError struct {
	Stack  string
	Failed []string
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("stack %s: services failed to start: %s", e.Stack, strings.Join(e.Failed, ", "))
}

func (e *StartupError) Unwrap() error {
	return ErrPartialStartupFailure
}

// ShutdownError aggregates per-service errors from a down cycle. Teardown
// continues past individual failures and reports them all at the end.
type ShutdownError struct {
	Stack  string
	Errors map[string]error
}

func (e *ShutdownError) Error() string {
	names := make([]string, 0, len(e.Errors))
	for name := range e.Errors {
		names = append(names, name)
	}
	return fmt.Sprintf("stack %s: errors stopping services: %s", e.Stack, strings.Join(names, ", "))
}
