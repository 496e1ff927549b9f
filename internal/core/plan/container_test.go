package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prillcode/devstack/internal/core/stack"
)

// =============================================================================
// BuildContainerPlan Tests
// =============================================================================

func TestBuildContainerPlan_Basic(t *testing.T) {
	p := BuildContainerPlan(BuildContainerPlanParams{
		StackName: "dev",
		Service: stack.ServiceSpec{
			Name:  "redis",
			Image: "redis:7-alpine",
			Ports: []stack.Port{{Target: 6379, Published: 6379}},
		},
		NetworkName:  "devstack_dev",
		ProbeTimeout: 30 * time.Second,
	})

	assert.Equal(t, "devstack_dev_redis", p.Name)
	assert.Equal(t, "redis", p.Service)
	assert.Equal(t, "redis:7-alpine", p.Image)
	assert.Equal(t, []string{"devstack_dev"}, p.Networks)
	assert.Equal(t, "true", p.Labels[LabelManaged])
	assert.Equal(t, "dev", p.Labels[LabelStack])
	assert.Equal(t, "redis", p.Labels[LabelService])
	assert.Equal(t, "no", p.RestartPolicy.Name)

	require.Len(t, p.Ports, 1)
	assert.Equal(t, 6379, p.Ports[0].ContainerPort)
	assert.Equal(t, 6379, p.Ports[0].HostPort)
}

func TestBuildContainerPlan_ParameterSubstitution(t *testing.T) {
	p := BuildContainerPlan(BuildContainerPlanParams{
		StackName: "dev",
		Service: stack.ServiceSpec{
			Name:  "nginx",
			Image: "nginx:alpine",
			Environment: map[string]string{
				"HTML_ROOT": "${serve_path}",
			},
			Volumes: []stack.VolumeMount{
				{Type: stack.VolumeMountTypeBind, Source: "${serve_path}", Target: "/usr/share/nginx/html", ReadOnly: true},
			},
		},
		Parameters:  map[string]string{"serve_path": "/srv/www"},
		NetworkName: "devstack_dev",
	})

	assert.Equal(t, "/srv/www", p.Env["HTML_ROOT"])
	require.Len(t, p.Volumes, 1)
	assert.Equal(t, "/srv/www", p.Volumes[0].Source)
	assert.True(t, p.Volumes[0].ReadOnly)
}

func TestBuildContainerPlan_NamedVolumePrefix(t *testing.T) {
	p := BuildContainerPlan(BuildContainerPlanParams{
		StackName: "dev",
		Service: stack.ServiceSpec{
			Name:  "postgres",
			Image: "postgres:16-alpine",
			Volumes: []stack.VolumeMount{
				{Type: stack.VolumeMountTypeVolume, Source: "pgdata", Target: "/var/lib/postgresql/data"},
			},
		},
		NetworkName: "devstack_dev",
	})

	require.Len(t, p.Volumes, 1)
	assert.Equal(t, "devstack_dev_pgdata", p.Volumes[0].Source)
}

func TestBuildContainerPlan_RestartPolicies(t *testing.T) {
	tests := []struct {
		policy   stack.RestartPolicy
		expected string
	}{
		{stack.RestartNo, "no"},
		{stack.RestartAlways, "always"},
		{stack.RestartOnFailure, "on-failure"},
		{stack.RestartUnlessStopped, "unless-stopped"},
		{"", "no"},
	}
	for _, tt := range tests {
		p := BuildContainerPlan(BuildContainerPlanParams{
			StackName: "dev",
			Service:   stack.ServiceSpec{Name: "s", Image: "img", Restart: tt.policy},
		})
		assert.Equal(t, tt.expected, p.RestartPolicy.Name)
	}
}

func TestBuildContainerPlan_ProfileLabel(t *testing.T) {
	p := BuildContainerPlan(BuildContainerPlanParams{
		StackName: "dev",
		Service: stack.ServiceSpec{
			Name:     "nginx",
			Image:    "nginx:alpine",
			Profiles: []string{"production-test"},
		},
	})
	assert.Equal(t, "production-test", p.Labels[LabelProfile])
}

// =============================================================================
// Probe Plan Tests
// =============================================================================

func TestBuildContainerPlan_ProbeFromFirstPublishedPort(t *testing.T) {
	p := BuildContainerPlan(BuildContainerPlanParams{
		StackName: "dev",
		Service: stack.ServiceSpec{
			Name:  "postgres",
			Image: "postgres:16-alpine",
			Ports: []stack.Port{{Target: 5432, Published: 15432}},
		},
		ProbeTimeout: 10 * time.Second,
	})

	assert.Equal(t, "127.0.0.1", p.Probe.Host)
	assert.Equal(t, 15432, p.Probe.Port)
	assert.Equal(t, 10*time.Second, p.Probe.Timeout)
}

func TestBuildContainerPlan_ProbeSkipsUDP(t *testing.T) {
	p := BuildContainerPlan(BuildContainerPlanParams{
		StackName: "dev",
		Service: stack.ServiceSpec{
			Name:  "dns",
			Image: "coredns:latest",
			Ports: []stack.Port{
				{Target: 53, Published: 5353, Protocol: "udp"},
				{Target: 9153, Published: 9153, Protocol: "tcp"},
			},
		},
	})
	assert.Equal(t, 9153, p.Probe.Port)
}

func TestBuildContainerPlan_NoPublishedPorts(t *testing.T) {
	p := BuildContainerPlan(BuildContainerPlanParams{
		StackName: "dev",
		Service:   stack.ServiceSpec{Name: "worker", Image: "worker:1"},
	})
	// No probe target; orchestrator falls back to the running state.
	assert.Equal(t, 0, p.Probe.Port)
}

func TestBuildContainerPlan_ProbeHostIP(t *testing.T) {
	p := BuildContainerPlan(BuildContainerPlanParams{
		StackName: "dev",
		Service: stack.ServiceSpec{
			Name:  "redis",
			Image: "redis:7-alpine",
			Ports: []stack.Port{{Target: 6379, Published: 6379, HostIP: "192.168.1.20"}},
		},
	})
	assert.Equal(t, "192.168.1.20", p.Probe.Host)
}
