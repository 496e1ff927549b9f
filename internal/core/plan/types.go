package plan

import (
	"time"

	"github.com/prillcode/devstack/internal/core/stack"
)

// =============================================================================
// Container Plan Types
// =============================================================================

// ContainerPlan is a planned container configuration, ready for the shell
// to execute via the Docker API.
type ContainerPlan struct {
	Name          string
	Service       string
	Image         string
	Command       []string
	Entrypoint    []string
	Env           map[string]string
	Labels        map[string]string
	Ports         []PortPlan
	Volumes       []VolumePlan
	Networks      []string
	RestartPolicy RestartPolicyPlan
	Probe         ProbePlan
}

// PortPlan represents a planned port binding.
type PortPlan struct {
	ContainerPort int
	HostPort      int
	Protocol      string
	HostIP        string
}

// VolumePlan represents a planned volume mount.
type VolumePlan struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RestartPolicyPlan represents a restart policy in Docker's vocabulary.
type RestartPolicyPlan struct {
	Name              string
	MaximumRetryCount int
}

// ProbePlan describes how readiness is established for a started service.
// Port 0 means the service declares no ports and readiness degrades to the
// container reaching the running state.
type ProbePlan struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// =============================================================================
// Builder Parameter Types
// =============================================================================

// BuildContainerPlanParams contains all inputs for building a container plan.
type BuildContainerPlanParams struct {
	StackName    string
	Service      stack.ServiceSpec
	Parameters   map[string]string
	NetworkName  string
	ProbeTimeout time.Duration
}

// =============================================================================
// Stack Labels
// =============================================================================

// Label keys used to identify devstack-managed resources.
const (
	LabelManaged = "com.devstack.managed"
	LabelStack   = "com.devstack.stack"
	LabelService = "com.devstack.service"
	LabelProfile = "com.devstack.profile"
)
