package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/prillcode/devstack/internal/core/status"
)

// =============================================================================
// Run History Types
// =============================================================================

// Operation is the kind of lifecycle cycle a run records.
type Operation string

const (
	OperationUp   Operation = "up"
	OperationDown Operation = "down"
)

// Run records one lifecycle cycle of a stack.
type Run struct {
	ID         string
	Stack      string
	Operation  Operation
	Profile    string
	Parameters map[string]string // Resolved parameter values used for the cycle
	Outcome    string            // Final stack state, e.g. "ready"
	StartedAt  time.Time
	FinishedAt time.Time
	Services   []RunService
}

// RunService is the outcome of one service within a run.
type RunService struct {
	Service string
	State   string
	Reason  string
	Elapsed time.Duration
}

// NewRun creates a run with a fresh ID and the clock started.
func NewRun(stackName string, op Operation, profile string, parameters map[string]string) *Run {
	return &Run{
		ID:         uuid.NewString(),
		Stack:      stackName,
		Operation:  op,
		Profile:    profile,
		Parameters: parameters,
		StartedAt:  time.Now().UTC(),
	}
}

// Finish stamps the run with its outcome and the per-service results from
// the final snapshot.
func (r *Run) Finish(snap status.Snapshot) {
	r.FinishedAt = time.Now().UTC()
	r.Outcome = string(snap.State)
	r.Services = r.Services[:0]
	for _, s := range snap.Services {
		r.Services = append(r.Services, RunService{
			Service: s.Service,
			State:   string(s.State),
			Reason:  s.Reason,
			Elapsed: s.Elapsed,
		})
	}
}

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for run history.
type Store interface {
	// RecordRun persists a finished run with its service outcomes.
	RecordRun(ctx context.Context, run *Run) error

	// GetRun returns a run by ID.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs for a stack, newest first. An empty stack name
	// returns runs for all stacks.
	ListRuns(ctx context.Context, stackName string, opts ListOptions) ([]Run, error)

	// PruneRuns deletes all but the newest keep runs per stack.
	PruneRuns(ctx context.Context, stackName string, keep int) (int64, error)

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  50,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
