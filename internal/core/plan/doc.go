// Package plan provides pure functions for turning a stack definition into
// an execution plan.
//
// All functions here are free of I/O and side effects. The imperative shell
// (internal/shell/orchestrator) calls them to decide what to run, then
// executes the result via the Docker API.
//
//   - Profiles: select the active service subset (ResolveProfile)
//   - Parameters: resolve runtime parameters flag > env > default (ResolveParameters)
//   - Ordering: sort services by dependencies (TopologicalSort, StartWaves)
//   - Variables: substitute ${NAME} placeholders (Substitute)
//   - Naming: generate stable resource names (ContainerName, NetworkName, VolumeName)
//   - Container: build container plans (BuildContainerPlan)
package plan
