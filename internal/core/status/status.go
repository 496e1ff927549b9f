// Package status models per-service and stack-wide state. Pure values and
// functions only; the orchestrator owns the mutable copy and hands out
// snapshots.
package status

import "time"

// =============================================================================
// Service State
// =============================================================================

// ServiceState is the lifecycle state of a single service.
type ServiceState string

const (
	ServicePending  ServiceState = "pending"
	ServiceStarting ServiceState = "starting"
	ServiceReady    ServiceState = "ready"
	ServiceFailed   ServiceState = "failed"
	ServiceStopped  ServiceState = "stopped"
)

// ServiceStatus is the observed status of one service.
type ServiceStatus struct {
	Service     string        `json:"service"`
	State       ServiceState  `json:"state"`
	Reason      string        `json:"reason,omitempty"` // Set when State is failed
	ContainerID string        `json:"container_id,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns,omitempty"` // Time from start to the terminal observation
}

// =============================================================================
// Stack State
// =============================================================================

// StackState is the aggregate state of the whole stack.
//
// Lifecycle: Idle → Starting → (Ready | PartiallyFailed) → Stopping →
// Stopped. Stopped is terminal until a new Starting cycle is explicitly
// requested.
type StackState string

const (
	StackIdle            StackState = "idle"
	StackStarting        StackState = "starting"
	StackReady           StackState = "ready"
	StackPartiallyFailed StackState = "partially-failed"
	StackStopping        StackState = "stopping"
	StackStopped         StackState = "stopped"
)

// validTransitions encodes the stack state machine.
var validTransitions = map[StackState][]StackState{
	StackIdle:            {StackStarting},
	StackStarting:        {StackReady, StackPartiallyFailed, StackStopping},
	StackReady:           {StackStopping},
	StackPartiallyFailed: {StackStopping},
	StackStopping:        {StackStopped},
	StackStopped:         {StackStarting},
}

// CanTransition reports whether moving from one stack state to another is
// legal.
func CanTransition(from, to StackState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// =============================================================================
// Aggregation
// =============================================================================

// Aggregate determines the outcome of a start cycle from settled service
// states. It is only meaningful once every selected service has left
// Pending/Starting: all Ready → Ready, otherwise PartiallyFailed.
func Aggregate(services []ServiceStatus) StackState {
	if len(services) == 0 {
		return StackIdle
	}
	for _, s := range services {
		if s.State != ServiceReady {
			return StackPartiallyFailed
		}
	}
	return StackReady
}

// Settled reports whether every service has reached a terminal observation
// for the current cycle (nothing still pending or starting).
func Settled(services []ServiceStatus) bool {
	for _, s := range services {
		if s.State == ServicePending || s.State == ServiceStarting {
			return false
		}
	}
	return true
}

// FailedServices returns the names of services in the failed state, in
// order.
func FailedServices(services []ServiceStatus) []string {
	var failed []string
	for _, s := range services {
		if s.State == ServiceFailed {
			failed = append(failed, s.Service)
		}
	}
	return failed
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is an immutable view of the stack handed to observers. Mutating
// a snapshot never affects the orchestrator's state.
type Snapshot struct {
	Stack    string          `json:"stack"`
	State    StackState      `json:"state"`
	Profile  string          `json:"profile,omitempty"`
	Services []ServiceStatus `json:"services"`
	Taken    time.Time       `json:"taken"`
}

// Clone deep-copies a snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Services = make([]ServiceStatus, len(s.Services))
	copy(out.Services, s.Services)
	return out
}
