// Package stack contains pure functions for parsing and validating stack
// definitions. No I/O happens here; the shell feeds raw YAML in and gets a
// StackDefinition or a ValidationError out.
package stack

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Input validation errors
	ErrEmptyInput = errors.New("stack definition is empty")

	// YAML parsing errors
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// Structure errors
	ErrNoServices = errors.New("stack must define at least one service")

	// Service validation errors
	ErrDuplicateService   = errors.New("duplicate service name")
	ErrServiceNoImage     = errors.New("service must have an image")
	ErrInvalidPort        = errors.New("invalid port configuration")
	ErrEmptyVolumePath    = errors.New("volume path cannot be empty")
	ErrUnknownDependency  = errors.New("depends_on references unknown service")
	ErrCircularDependency = errors.New("circular dependency detected")

	// Parameter validation errors
	ErrInvalidParameter = errors.New("invalid parameter declaration")
	ErrUnknownParameter = errors.New("reference to undeclared parameter")
)

// ValidationError wraps errors with context about where validation failed.
type ValidationError struct {
	Field   string // e.g., "services.nginx.volumes[0]"
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
