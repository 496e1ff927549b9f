package stack

// =============================================================================
// StackDefinition - Main Output Type
// =============================================================================

// StackDefinition is the fully parsed definition of a service stack.
// Service order follows declaration order in the stack file.
type StackDefinition struct {
	Name       string        `json:"name"`
	Services   []ServiceSpec `json:"services"`
	Volumes    []Volume      `json:"volumes,omitempty"`
	Parameters []Parameter   `json:"parameters,omitempty"`
}

// Service returns the service with the given name, or nil.
func (d *StackDefinition) Service(name string) *ServiceSpec {
	for i := range d.Services {
		if d.Services[i].Name == name {
			return &d.Services[i]
		}
	}
	return nil
}

// Profiles returns the set of profile tags declared by any service.
func (d *StackDefinition) Profiles() map[string]bool {
	profiles := make(map[string]bool)
	for _, svc := range d.Services {
		for _, p := range svc.Profiles {
			profiles[p] = true
		}
	}
	return profiles
}

// Parameter returns the declared parameter with the given name, or nil.
func (d *StackDefinition) Parameter(name string) *Parameter {
	for i := range d.Parameters {
		if d.Parameters[i].Name == name {
			return &d.Parameters[i]
		}
	}
	return nil
}

// =============================================================================
// Service Types
// =============================================================================

// ServiceSpec represents a single service definition.
type ServiceSpec struct {
	Name        string            `json:"name"`
	Image       string            `json:"image"`
	Command     []string          `json:"command,omitempty"`
	Entrypoint  []string          `json:"entrypoint,omitempty"`
	Ports       []Port            `json:"ports,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Volumes     []VolumeMount     `json:"volumes,omitempty"`
	Profiles    []string          `json:"profiles,omitempty"`
	DependsOn   []string          `json:"depends_on,omitempty"`
	Restart     RestartPolicy     `json:"restart,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// AlwaysOn reports whether the service runs in every invocation.
// A service with no profile tags is always-on.
func (s ServiceSpec) AlwaysOn() bool {
	return len(s.Profiles) == 0
}

// HasProfile reports whether the service is tagged with the given profile.
func (s ServiceSpec) HasProfile(profile string) bool {
	for _, p := range s.Profiles {
		if p == profile {
			return true
		}
	}
	return false
}

// ProbePort returns the port used for readiness probing: the first
// published TCP port. The zero Port means the service publishes no
// probeable port and readiness falls back to the container running.
func (s ServiceSpec) ProbePort() Port {
	for _, p := range s.Ports {
		if p.Published == 0 {
			continue
		}
		if p.Protocol != "" && p.Protocol != "tcp" {
			continue
		}
		return p
	}
	return Port{}
}

// Port represents a port mapping.
type Port struct {
	Target    uint32 `json:"target"`              // Container port
	Published uint32 `json:"published,omitempty"` // Host port (0 = dynamic)
	Protocol  string `json:"protocol,omitempty"`  // tcp, udp
	HostIP    string `json:"host_ip,omitempty"`   // Bind IP
}

// VolumeMount represents a volume mount in a service.
type VolumeMount struct {
	Type     VolumeMountType `json:"type"`     // bind, volume, tmpfs
	Source   string          `json:"source"`   // Path or volume name
	Target   string          `json:"target"`   // Container path
	ReadOnly bool            `json:"readonly"`
}

// VolumeMountType represents the type of volume mount.
type VolumeMountType string

const (
	VolumeMountTypeBind   VolumeMountType = "bind"
	VolumeMountTypeVolume VolumeMountType = "volume"
	VolumeMountTypeTmpfs  VolumeMountType = "tmpfs"
)

// RestartPolicy represents the restart policy.
type RestartPolicy string

const (
	RestartNo            RestartPolicy = "no"
	RestartAlways        RestartPolicy = "always"
	RestartOnFailure     RestartPolicy = "on-failure"
	RestartUnlessStopped RestartPolicy = "unless-stopped"
)

// =============================================================================
// Volume Types
// =============================================================================

// Volume represents a named volume definition.
type Volume struct {
	Name     string            `json:"name"`
	Driver   string            `json:"driver,omitempty"`
	External bool              `json:"external"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// =============================================================================
// Runtime Parameter Declarations
// =============================================================================

// Parameter declares a runtime parameter in the stack file's x-parameters
// block. Values resolve at invocation time: flag > environment > default.
type Parameter struct {
	Name        string `json:"name"`
	Env         string `json:"env,omitempty"`     // Environment variable consulted when no flag is given
	Default     string `json:"default,omitempty"` // Used when neither flag nor env supplies a value
	Description string `json:"description,omitempty"`
}
