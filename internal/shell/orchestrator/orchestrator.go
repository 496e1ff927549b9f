// Package orchestrator drives the lifecycle of a service stack: it turns a
// parsed stack definition into running containers, waits for readiness, and
// tears the stack back down. Planning is pure (internal/core/plan); this
// package owns all Docker and network effects.
package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prillcode/devstack/internal/core/plan"
	"github.com/prillcode/devstack/internal/core/stack"
	"github.com/prillcode/devstack/internal/core/status"
	"github.com/prillcode/devstack/internal/shell/docker"
	"github.com/prillcode/devstack/internal/shell/probe"
)

// =============================================================================
// Orchestrator
// =============================================================================

const (
	// DefaultStopGrace is how long a container gets to exit on SIGTERM
	// before the daemon kills it.
	DefaultStopGrace = 10 * time.Second

	// runningPollInterval is used for services with no published port,
	// where readiness degrades to the container reaching running state.
	runningPollInterval = 500 * time.Millisecond
)

// Config holds orchestrator tuning knobs.
type Config struct {
	ProbeTimeout time.Duration // Per-service readiness deadline; probe.DefaultTimeout when zero
	StopGrace    time.Duration // SIGTERM grace on stop; DefaultStopGrace when zero
	PullImages   bool          // Pull images missing locally before create
}

// UpOptions parameterizes a single up cycle.
type UpOptions struct {
	Profile    string
	Parameters map[string]string // Resolved parameter values for substitution
}

// Orchestrator starts and stops stacks against a Docker daemon.
type Orchestrator struct {
	client docker.Client
	prober probe.Prober
	logger *slog.Logger
	config Config

	mu       sync.Mutex
	snapshot status.Snapshot
}

// New creates an orchestrator.
func New(client docker.Client, prober probe.Prober, logger *slog.Logger, config Config) *Orchestrator {
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = probe.DefaultTimeout
	}
	if config.StopGrace <= 0 {
		config.StopGrace = DefaultStopGrace
	}
	return &Orchestrator{
		client: client,
		prober: prober,
		logger: logger.With("component", "orchestrator"),
		config: config,
		snapshot: status.Snapshot{
			State: status.StackIdle,
		},
	}
}

// Snapshot returns a copy of the current stack snapshot. Safe to call
// concurrently with Up and Down.
func (o *Orchestrator) Snapshot() status.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot.Clone()
}

// =============================================================================
// Up
// =============================================================================

// Up starts the services selected by the profile, in dependency waves, and
// waits for each to become ready. Services within a wave start and probe
// concurrently; one service failing never aborts its siblings. Up returns
// a *StartupError (wrapping ErrPartialStartupFailure) when at least one
// service failed while others succeeded.
func (o *Orchestrator) Up(ctx context.Context, def *stack.StackDefinition, opts UpOptions) (status.Snapshot, error) {
	selected, err := plan.ResolveProfile(def, opts.Profile)
	if err != nil {
		return o.Snapshot(), err
	}

	o.beginCycle(def.Name, opts.Profile, selected)

	log := o.logger.With("stack", def.Name)
	log.Info("starting stack", "profile", opts.Profile, "services", len(selected))

	networkName := plan.NetworkName(def.Name)
	if err := o.ensureNetwork(ctx, def.Name, networkName); err != nil {
		o.setStackState(status.StackPartiallyFailed)
		return o.Snapshot(), err
	}
	if err := o.ensureVolumes(ctx, def); err != nil {
		o.setStackState(status.StackPartiallyFailed)
		return o.Snapshot(), err
	}

	plans := make(map[string]plan.ContainerPlan, len(selected))
	for _, svc := range selected {
		plans[svc.Name] = plan.BuildContainerPlan(plan.BuildContainerPlanParams{
			StackName:    def.Name,
			Service:      svc,
			Parameters:   opts.Parameters,
			NetworkName:  networkName,
			ProbeTimeout: o.config.ProbeTimeout,
		})
	}

	waves := plan.StartWaves(selected)
	for i, wave := range waves {
		if ctx.Err() != nil {
			o.markUnstarted(status.ServiceStopped, "cancelled")
			o.setStackState(status.StackStopping)
			o.setStackState(status.StackStopped)
			return o.Snapshot(), ctx.Err()
		}

		log.Debug("starting wave", "wave", i, "services", len(wave))

		var wg sync.WaitGroup
		for _, svc := range wave {
			if reason, blocked := o.dependencyFailed(svc); blocked {
				o.setService(svc.Name, status.ServiceFailed, reason, "", 0)
				log.Warn("skipping service", "service", svc.Name, "reason", reason)
				continue
			}

			wg.Add(1)
			go func(svc stack.ServiceSpec) {
				defer wg.Done()
				o.startService(ctx, plans[svc.Name], log)
			}(svc)
		}
		wg.Wait()
	}

	// Cancellation during the final wave: services are already marked
	// Stopped, which must not aggregate into a startup failure.
	if ctx.Err() != nil {
		o.markUnstarted(status.ServiceStopped, "cancelled")
		o.setStackState(status.StackStopping)
		o.setStackState(status.StackStopped)
		return o.Snapshot(), ctx.Err()
	}

	snap := o.settle()

	switch snap.State {
	case status.StackReady:
		log.Info("stack ready", "services", len(snap.Services))
		return snap, nil
	default:
		failed := status.FailedServices(snap.Services)
		log.Warn("stack partially failed", "failed", failed)
		return snap, &StartupError{Stack: def.Name, Failed: failed}
	}
}

// startService creates, starts, and probes a single container, recording
// the outcome in the status map.
func (o *Orchestrator) startService(ctx context.Context, p plan.ContainerPlan, log *slog.Logger) {
	start := time.Now()
	o.setService(p.Service, status.ServiceStarting, "", "", 0)

	containerID, err := o.createContainer(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			o.setService(p.Service, status.ServiceStopped, "cancelled", "", time.Since(start))
			return
		}
		o.setService(p.Service, status.ServiceFailed, err.Error(), "", time.Since(start))
		log.Error("failed to create container", "service", p.Service, "error", err)
		return
	}

	if err := o.client.StartContainer(ctx, containerID); err != nil {
		if ctx.Err() != nil {
			o.setService(p.Service, status.ServiceStopped, "cancelled", containerID, time.Since(start))
			return
		}
		o.setService(p.Service, status.ServiceFailed, err.Error(), containerID, time.Since(start))
		log.Error("failed to start container", "service", p.Service, "error", err)
		return
	}

	if err := o.awaitReady(ctx, p, containerID); err != nil {
		if ctx.Err() != nil {
			o.setService(p.Service, status.ServiceStopped, "cancelled", containerID, time.Since(start))
			return
		}
		o.setService(p.Service, status.ServiceFailed, err.Error(), containerID, time.Since(start))
		log.Error("service not ready", "service", p.Service, "error", err)
		return
	}

	o.setService(p.Service, status.ServiceReady, "", containerID, time.Since(start))
	log.Info("service ready", "service", p.Service, "elapsed", time.Since(start).Round(time.Millisecond))
}

// createContainer pulls the image if required and creates the container,
// replacing a stale container left over from a previous run.
func (o *Orchestrator) createContainer(ctx context.Context, p plan.ContainerPlan) (string, error) {
	if o.config.PullImages {
		exists, err := o.client.ImageExists(ctx, p.Image)
		if err != nil {
			return "", err
		}
		if !exists {
			if err := o.client.PullImage(ctx, p.Image, docker.PullOptions{}); err != nil {
				return "", err
			}
		}
	}

	spec := containerSpecFromPlan(p)

	containerID, err := o.client.CreateContainer(ctx, spec)
	if errors.Is(err, docker.ErrContainerAlreadyExists) {
		// Stale container from a previous run: replace it
		if rmErr := o.client.RemoveContainer(ctx, p.Name, docker.RemoveOptions{Force: true}); rmErr != nil {
			return "", rmErr
		}
		containerID, err = o.client.CreateContainer(ctx, spec)
	}
	return containerID, err
}

// awaitReady waits for the service's readiness condition: a TCP accept on
// the probe port, or the container reaching running state when the service
// publishes no port.
func (o *Orchestrator) awaitReady(ctx context.Context, p plan.ContainerPlan, containerID string) error {
	if p.Probe.Port > 0 {
		return o.prober.WaitReady(ctx, probe.Target{
			Service: p.Service,
			Host:    p.Probe.Host,
			Port:    p.Probe.Port,
			Timeout: p.Probe.Timeout,
		})
	}
	return o.waitRunning(ctx, p, containerID)
}

// waitRunning polls the container until it is running or the probe deadline
// passes.
func (o *Orchestrator) waitRunning(ctx context.Context, p plan.ContainerPlan, containerID string) error {
	start := time.Now()
	deadline := start.Add(p.Probe.Timeout)
	ticker := time.NewTicker(runningPollInterval)
	defer ticker.Stop()

	for {
		info, err := o.client.InspectContainer(ctx, containerID)
		if err == nil {
			switch info.Status {
			case docker.ContainerStatusRunning:
				return nil
			case docker.ContainerStatusExited, docker.ContainerStatusDead:
				return &probe.TimeoutError{Service: p.Service, Address: containerID, Elapsed: time.Since(start)}
			}
		}

		if time.Now().After(deadline) {
			return &probe.TimeoutError{Service: p.Service, Address: containerID, Elapsed: time.Since(start)}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// =============================================================================
// Down
// =============================================================================

// DownOptions parameterizes a teardown cycle.
type DownOptions struct {
	RemoveVolumes bool // Also remove the stack's named volumes
}

// Down stops and removes the stack's containers in reverse dependency
// order, then removes the stack network. Named volumes are kept so data
// survives restarts, unless RemoveVolumes is set. Down is idempotent:
// absent containers are skipped, and errors on one service never stop
// teardown of the rest.
func (o *Orchestrator) Down(ctx context.Context, def *stack.StackDefinition, opts DownOptions) error {
	log := o.logger.With("stack", def.Name)
	log.Info("stopping stack")

	o.setStackStateIfRunning(status.StackStopping)

	containers, err := o.listStackContainers(ctx, def.Name)
	if err != nil {
		return err
	}

	byName := make(map[string]docker.ContainerInfo, len(containers))
	for _, c := range containers {
		byName[c.Labels[plan.LabelService]] = c
	}

	grace := o.config.StopGrace
	failures := make(map[string]error)

	ordered := plan.TopologicalSort(def.Services)
	for i := len(ordered) - 1; i >= 0; i-- {
		svc := ordered[i].Name
		info, running := byName[svc]
		if !running {
			continue
		}
		delete(byName, svc)

		if err := o.stopAndRemove(ctx, info, grace); err != nil {
			failures[svc] = err
			log.Error("failed to stop service", "service", svc, "error", err)
			continue
		}
		o.setService(svc, status.ServiceStopped, "", "", 0)
		log.Info("service stopped", "service", svc)
	}

	// Sweep containers whose service is no longer in the definition
	for svc, info := range byName {
		if err := o.stopAndRemove(ctx, info, grace); err != nil {
			failures[svc] = err
			log.Error("failed to stop service", "service", svc, "error", err)
		}
	}

	if err := o.client.RemoveNetwork(ctx, plan.NetworkName(def.Name)); err != nil {
		if !errors.Is(err, docker.ErrNetworkNotFound) {
			failures["network"] = err
			log.Error("failed to remove network", "error", err)
		}
	}

	if opts.RemoveVolumes {
		for _, vol := range def.Volumes {
			if vol.External {
				continue
			}
			name := plan.VolumeName(def.Name, vol.Name)
			if err := o.client.RemoveVolume(ctx, name, false); err != nil {
				if errors.Is(err, docker.ErrVolumeNotFound) {
					continue
				}
				failures["volume "+vol.Name] = err
				log.Error("failed to remove volume", "volume", name, "error", err)
				continue
			}
			log.Info("volume removed", "volume", name)
		}
	}

	o.setStackState(status.StackStopped)

	if len(failures) > 0 {
		return &ShutdownError{Stack: def.Name, Errors: failures}
	}
	log.Info("stack stopped")
	return nil
}

func (o *Orchestrator) stopAndRemove(ctx context.Context, info docker.ContainerInfo, grace time.Duration) error {
	err := o.client.StopContainer(ctx, info.ID, &grace)
	if err != nil && !errors.Is(err, docker.ErrContainerNotFound) && !errors.Is(err, docker.ErrContainerNotRunning) {
		return err
	}
	err = o.client.RemoveContainer(ctx, info.ID, docker.RemoveOptions{Force: true})
	if err != nil && !errors.Is(err, docker.ErrContainerNotFound) {
		return err
	}
	return nil
}

// =============================================================================
// Logs
// =============================================================================

// Logs streams logs from one service's container, located by label. The
// caller closes the returned reader.
func (o *Orchestrator) Logs(ctx context.Context, stackName, service string, opts docker.LogOptions) (io.ReadCloser, error) {
	containers, err := o.client.ListContainers(ctx, docker.ListOptions{
		All: true,
		Filters: map[string]string{
			"label": plan.LabelService + "=" + service,
		},
	})
	if err != nil {
		return nil, err
	}

	for _, c := range containers {
		if c.Labels[plan.LabelStack] == stackName {
			return o.client.ContainerLogs(ctx, c.ID, opts)
		}
	}
	return nil, docker.NewDockerError("Logs", "container",
		plan.ContainerName(stackName, service), "no container for service "+service, docker.ErrContainerNotFound)
}

// =============================================================================
// Status
// =============================================================================

// Status inspects the stack's containers by label and reports per-service
// and aggregate state. It needs no local state, so it works across process
// restarts.
func (o *Orchestrator) Status(ctx context.Context, stackName string) (status.Snapshot, error) {
	containers, err := o.listStackContainers(ctx, stackName)
	if err != nil {
		return status.Snapshot{}, err
	}

	snap := status.Snapshot{
		Stack: stackName,
		Taken: time.Now(),
	}

	for _, c := range containers {
		svc := c.Labels[plan.LabelService]
		if svc == "" {
			svc = c.Name
		}
		snap.Services = append(snap.Services, status.ServiceStatus{
			Service:     svc,
			State:       serviceStateFromContainer(c.Status),
			ContainerID: c.ID,
		})
	}

	sort.Slice(snap.Services, func(i, j int) bool {
		return snap.Services[i].Service < snap.Services[j].Service
	})

	if len(snap.Services) == 0 {
		snap.State = status.StackStopped
		return snap, nil
	}
	snap.State = status.Aggregate(snap.Services)
	return snap, nil
}

func (o *Orchestrator) listStackContainers(ctx context.Context, stackName string) ([]docker.ContainerInfo, error) {
	return o.client.ListContainers(ctx, docker.ListOptions{
		All: true,
		Filters: map[string]string{
			"label": plan.LabelStack + "=" + stackName,
		},
	})
}

// serviceStateFromContainer maps a container status to a service state for
// stateless status reporting. A running container counts as ready here;
// readiness probing only applies during an up cycle.
func serviceStateFromContainer(s docker.ContainerStatus) status.ServiceState {
	switch s {
	case docker.ContainerStatusRunning:
		return status.ServiceReady
	case docker.ContainerStatusCreated, docker.ContainerStatusRestarting:
		return status.ServiceStarting
	case docker.ContainerStatusExited, docker.ContainerStatusDead, docker.ContainerStatusRemoving:
		return status.ServiceFailed
	default:
		return status.ServicePending
	}
}

// =============================================================================
// Infrastructure Helpers
// =============================================================================

func (o *Orchestrator) ensureNetwork(ctx context.Context, stackName, networkName string) error {
	_, err := o.client.CreateNetwork(ctx, docker.NetworkSpec{
		Name: networkName,
		Labels: map[string]string{
			plan.LabelManaged: "true",
			plan.LabelStack:   stackName,
		},
	})
	if errors.Is(err, docker.ErrNetworkAlreadyExists) {
		return nil
	}
	return err
}

func (o *Orchestrator) ensureVolumes(ctx context.Context, def *stack.StackDefinition) error {
	for _, vol := range def.Volumes {
		if vol.External {
			continue
		}
		_, err := o.client.CreateVolume(ctx, docker.VolumeSpec{
			Name:   plan.VolumeName(def.Name, vol.Name),
			Driver: vol.Driver,
			Labels: map[string]string{
				plan.LabelManaged: "true",
				plan.LabelStack:   def.Name,
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// containerSpecFromPlan translates a pure container plan into the Docker
// shell's vocabulary.
func containerSpecFromPlan(p plan.ContainerPlan) docker.ContainerSpec {
	spec := docker.ContainerSpec{
		Name:       p.Name,
		Image:      p.Image,
		Command:    p.Command,
		Entrypoint: p.Entrypoint,
		Env:        p.Env,
		Labels:     p.Labels,
		Networks:   p.Networks,
		RestartPolicy: docker.RestartPolicy{
			Name:              p.RestartPolicy.Name,
			MaximumRetryCount: p.RestartPolicy.MaximumRetryCount,
		},
	}

	// Expose the service name as a DNS alias on the stack network so
	// services reach each other by name
	spec.NetworkAliases = map[string][]string{}
	for _, n := range p.Networks {
		spec.NetworkAliases[n] = []string{p.Service}
	}

	for _, port := range p.Ports {
		spec.Ports = append(spec.Ports, docker.PortBinding{
			ContainerPort: port.ContainerPort,
			HostPort:      port.HostPort,
			Protocol:      port.Protocol,
			HostIP:        port.HostIP,
		})
	}

	for _, v := range p.Volumes {
		spec.Volumes = append(spec.Volumes, docker.VolumeMount{
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	return spec
}

// =============================================================================
// Status Bookkeeping
// =============================================================================

// beginCycle resets the snapshot for a new up cycle with every selected
// service pending.
func (o *Orchestrator) beginCycle(stackName, profile string, selected []stack.ServiceSpec) {
	o.mu.Lock()
	defer o.mu.Unlock()

	services := make([]status.ServiceStatus, len(selected))
	for i, svc := range selected {
		services[i] = status.ServiceStatus{Service: svc.Name, State: status.ServicePending}
	}
	o.snapshot = status.Snapshot{
		Stack:    stackName,
		State:    status.StackStarting,
		Profile:  profile,
		Services: services,
		Taken:    time.Now(),
	}
}

func (o *Orchestrator) setService(name string, state status.ServiceState, reason, containerID string, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := range o.snapshot.Services {
		if o.snapshot.Services[i].Service == name {
			o.snapshot.Services[i].State = state
			o.snapshot.Services[i].Reason = reason
			if containerID != "" {
				o.snapshot.Services[i].ContainerID = containerID
			}
			if elapsed > 0 {
				o.snapshot.Services[i].Elapsed = elapsed
			}
			o.snapshot.Taken = time.Now()
			return
		}
	}
}

func (o *Orchestrator) setStackState(state status.StackState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if status.CanTransition(o.snapshot.State, state) {
		o.snapshot.State = state
		o.snapshot.Taken = time.Now()
	}
}

// setStackStateIfRunning moves the stack toward the target only when the
// current state allows it; used by Down, which may run against a stack this
// process never started.
func (o *Orchestrator) setStackStateIfRunning(state status.StackState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	// Down may run against a stack this process never started, so the
	// state machine is not consulted here.
	o.snapshot.State = state
	o.snapshot.Taken = time.Now()
}

// dependencyFailed reports whether any in-set dependency of svc has failed,
// which blocks svc from starting.
func (o *Orchestrator) dependencyFailed(svc stack.ServiceSpec) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, dep := range svc.DependsOn {
		for _, s := range o.snapshot.Services {
			if s.Service == dep && s.State == status.ServiceFailed {
				return "dependency " + dep + " failed", true
			}
		}
	}
	return "", false
}

// markUnstarted moves every still-pending service to the given terminal
// state. Used on cancellation.
func (o *Orchestrator) markUnstarted(state status.ServiceState, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := range o.snapshot.Services {
		if o.snapshot.Services[i].State == status.ServicePending {
			o.snapshot.Services[i].State = state
			o.snapshot.Services[i].Reason = reason
		}
	}
	o.snapshot.Taken = time.Now()
}

// settle computes the aggregate outcome once every service has reached a
// terminal observation, publishes it, and returns the final snapshot.
func (o *Orchestrator) settle() status.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.snapshot.State = status.Aggregate(o.snapshot.Services)
	o.snapshot.Taken = time.Now()
	return o.snapshot.Clone()
}
