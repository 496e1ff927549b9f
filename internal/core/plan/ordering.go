package plan

import (
	"github.com/prillcode/devstack/internal/core/stack"
)

// =============================================================================
// Service Ordering Functions
// =============================================================================

// TopologicalSort sorts services by their dependencies using Kahn's
// algorithm. Services with no dependencies come first; ties keep
// declaration order.
//
// Dependencies on services outside the given slice (e.g. filtered out by a
// profile) are ignored. If a cycle exists (which parsing rejects), the
// remaining services are appended as a fallback.
func TopologicalSort(services []stack.ServiceSpec) []stack.ServiceSpec {
	if len(services) == 0 {
		return services
	}

	inSet := make(map[string]bool, len(services))
	for _, svc := range services {
		inSet[svc.Name] = true
	}

	serviceMap := make(map[string]stack.ServiceSpec)
	inDegree := make(map[string]int)
	dependents := make(map[string][]string)

	for _, svc := range services {
		serviceMap[svc.Name] = svc
		for _, dep := range svc.DependsOn {
			if !inSet[dep] {
				continue
			}
			inDegree[svc.Name]++
			dependents[dep] = append(dependents[dep], svc.Name)
		}
	}

	// Seed with dependency-free services in declaration order.
	var queue []string
	for _, svc := range services {
		if inDegree[svc.Name] == 0 {
			queue = append(queue, svc.Name)
		}
	}

	var result []stack.ServiceSpec
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		if svc, ok := serviceMap[name]; ok {
			result = append(result, svc)
		}

		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	// Cycle fallback: append anything unprocessed.
	if len(result) < len(services) {
		seen := make(map[string]bool, len(result))
		for _, svc := range result {
			seen[svc.Name] = true
		}
		for _, svc := range services {
			if !seen[svc.Name] {
				result = append(result, svc)
			}
		}
	}

	return result
}

// StartWaves groups services into start waves: every service in wave N has
// all its in-set dependencies in waves < N. Services within a wave are
// independent of each other and start concurrently.
//
// Example:
//
//	// postgres, redis → wave 0; nginx (depends on both) → wave 1
func StartWaves(services []stack.ServiceSpec) [][]stack.ServiceSpec {
	if len(services) == 0 {
		return nil
	}

	inSet := make(map[string]bool, len(services))
	for _, svc := range services {
		inSet[svc.Name] = true
	}

	wave := make(map[string]int, len(services))
	ordered := TopologicalSort(services)

	maxWave := 0
	for _, svc := range ordered {
		w := 0
		for _, dep := range svc.DependsOn {
			if !inSet[dep] {
				continue
			}
			if wave[dep]+1 > w {
				w = wave[dep] + 1
			}
		}
		wave[svc.Name] = w
		if w > maxWave {
			maxWave = w
		}
	}

	waves := make([][]stack.ServiceSpec, maxWave+1)
	for _, svc := range ordered {
		w := wave[svc.Name]
		waves[w] = append(waves[w], svc)
	}
	return waves
}
