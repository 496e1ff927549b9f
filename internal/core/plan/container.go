package plan

import (
	"strings"

	"github.com/prillcode/devstack/internal/core/stack"
)

// =============================================================================
// Container Plan Building Functions
// =============================================================================

// BuildContainerPlan builds a ContainerPlan from a service spec and the
// invocation's resolved parameters.
//
// The function:
//   - Generates the container name using ContainerName()
//   - Substitutes resolved parameters into environment values and bind sources
//   - Prefixes named volumes with the stack name
//   - Maps the restart policy to Docker's vocabulary
//   - Derives the readiness probe target from the first published port
func BuildContainerPlan(params BuildContainerPlanParams) ContainerPlan {
	svc := params.Service

	p := ContainerPlan{
		Name:       ContainerName(params.StackName, svc.Name),
		Service:    svc.Name,
		Image:      svc.Image,
		Command:    svc.Command,
		Entrypoint: svc.Entrypoint,
		Env:        make(map[string]string),
		Labels: map[string]string{
			LabelManaged: "true",
			LabelStack:   params.StackName,
			LabelService: svc.Name,
		},
		Networks: []string{params.NetworkName},
	}

	if len(svc.Profiles) > 0 {
		p.Labels[LabelProfile] = strings.Join(svc.Profiles, ",")
	}

	for k, v := range svc.Environment {
		p.Env[k] = Substitute(v, params.Parameters)
	}

	for _, port := range svc.Ports {
		p.Ports = append(p.Ports, PortPlan{
			ContainerPort: int(port.Target),
			HostPort:      int(port.Published),
			Protocol:      port.Protocol,
			HostIP:        port.HostIP,
		})
	}

	for _, v := range svc.Volumes {
		source := Substitute(v.Source, params.Parameters)
		if v.Type == stack.VolumeMountTypeVolume {
			source = VolumeName(params.StackName, v.Source)
		}
		p.Volumes = append(p.Volumes, VolumePlan{
			Source:   source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	p.RestartPolicy = mapRestartPolicy(svc.Restart)

	for k, v := range svc.Labels {
		p.Labels[k] = v
	}

	p.Probe = buildProbePlan(svc, params)

	return p
}

// buildProbePlan derives the readiness probe target for a service.
// Readiness means the service accepts TCP connections on its first
// published port. A service publishing no host port is probed at 0, which
// the orchestrator treats as "running is ready".
func buildProbePlan(svc stack.ServiceSpec, params BuildContainerPlanParams) ProbePlan {
	probe := ProbePlan{
		Host:    "127.0.0.1",
		Timeout: params.ProbeTimeout,
	}
	port := svc.ProbePort()
	probe.Port = int(port.Published)
	if port.HostIP != "" && port.HostIP != "0.0.0.0" {
		probe.Host = port.HostIP
	}
	return probe
}

// mapRestartPolicy maps a stack restart policy to Docker's policy name.
func mapRestartPolicy(policy stack.RestartPolicy) RestartPolicyPlan {
	switch policy {
	case stack.RestartAlways:
		return RestartPolicyPlan{Name: "always"}
	case stack.RestartOnFailure:
		return RestartPolicyPlan{Name: "on-failure"}
	case stack.RestartUnlessStopped:
		return RestartPolicyPlan{Name: "unless-stopped"}
	default:
		return RestartPolicyPlan{Name: "no"}
	}
}
