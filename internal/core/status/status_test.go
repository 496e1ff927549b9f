package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// State Machine Tests
// =============================================================================

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from    StackState
		to      StackState
		allowed bool
	}{
		{StackIdle, StackStarting, true},
		{StackStarting, StackReady, true},
		{StackStarting, StackPartiallyFailed, true},
		{StackStarting, StackStopping, true}, // cancelled mid-start
		{StackReady, StackStopping, true},
		{StackPartiallyFailed, StackStopping, true},
		{StackStopping, StackStopped, true},
		{StackStopped, StackStarting, true}, // explicit new cycle

		{StackIdle, StackReady, false},
		{StackReady, StackStarting, false},
		{StackStopped, StackStopping, false},
		{StackStarting, StackStopped, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

// =============================================================================
// Aggregation Tests
// =============================================================================

func TestAggregate_AllReady(t *testing.T) {
	services := []ServiceStatus{
		{Service: "postgres", State: ServiceReady},
		{Service: "redis", State: ServiceReady},
	}
	assert.Equal(t, StackReady, Aggregate(services))
}

func TestAggregate_OneFailed(t *testing.T) {
	services := []ServiceStatus{
		{Service: "postgres", State: ServiceReady},
		{Service: "redis", State: ServiceFailed, Reason: "readiness timeout"},
	}
	assert.Equal(t, StackPartiallyFailed, Aggregate(services))
}

func TestAggregate_Empty(t *testing.T) {
	assert.Equal(t, StackIdle, Aggregate(nil))
}

func TestSettled(t *testing.T) {
	assert.True(t, Settled([]ServiceStatus{
		{State: ServiceReady},
		{State: ServiceFailed},
		{State: ServiceStopped},
	}))
	assert.False(t, Settled([]ServiceStatus{
		{State: ServiceReady},
		{State: ServiceStarting},
	}))
	assert.False(t, Settled([]ServiceStatus{
		{State: ServicePending},
	}))
}

func TestFailedServices(t *testing.T) {
	services := []ServiceStatus{
		{Service: "postgres", State: ServiceReady},
		{Service: "redis", State: ServiceFailed},
		{Service: "nginx", State: ServiceFailed},
	}
	assert.Equal(t, []string{"redis", "nginx"}, FailedServices(services))
	assert.Nil(t, FailedServices([]ServiceStatus{{State: ServiceReady}}))
}

// =============================================================================
// Snapshot Tests
// =============================================================================

func TestSnapshotClone(t *testing.T) {
	snap := Snapshot{
		Stack: "dev",
		State: StackReady,
		Services: []ServiceStatus{
			{Service: "postgres", State: ServiceReady},
		},
	}
	clone := snap.Clone()
	clone.Services[0].State = ServiceFailed

	assert.Equal(t, ServiceReady, snap.Services[0].State, "clone must not alias the original")
}
