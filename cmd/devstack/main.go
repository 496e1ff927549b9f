package main

import (
	"errors"
	"os"

	"github.com/prillcode/devstack/internal/core/plan"
	"github.com/prillcode/devstack/internal/core/stack"
	"github.com/prillcode/devstack/internal/shell/orchestrator"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess        = 0
	ExitError          = 1
	ExitPartialFailure = 2
	ExitConfigError    = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		return exitCode(err)
	}
	return ExitSuccess
}

// exitCode maps an error to the process exit code. Partial startup keeps
// its own code so scripts can tell "some services are up" from a hard
// failure; anything wrong with the invocation or the stack file is a
// config error.
func exitCode(err error) int {
	var validationErr *stack.ValidationError

	switch {
	case errors.Is(err, orchestrator.ErrPartialStartupFailure):
		return ExitPartialFailure
	case errors.As(err, &validationErr),
		errors.Is(err, stack.ErrInvalidYAML),
		errors.Is(err, stack.ErrEmptyInput),
		errors.Is(err, stack.ErrNoServices),
		errors.Is(err, stack.ErrCircularDependency),
		errors.Is(err, plan.ErrUnknownProfile),
		errors.Is(err, plan.ErrUndeclaredOverride),
		errors.Is(err, plan.ErrUnresolvedParameter),
		errors.Is(err, errConfig):
		return ExitConfigError
	default:
		return ExitError
	}
}
