package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prillcode/devstack/internal/core/plan"
	"github.com/prillcode/devstack/internal/core/status"
	"github.com/prillcode/devstack/internal/shell/orchestrator"
	"github.com/prillcode/devstack/internal/shell/probe"
	"github.com/prillcode/devstack/internal/shell/store"
)

// =============================================================================
// Up Command
// =============================================================================

func newUpCmd(a *app) *cobra.Command {
	var (
		profile string
		sets    []string
		timeout time.Duration
		detach  bool
	)

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start the stack and wait for services to become ready",
		Long: `up starts every always-on service, plus the services tagged with the
requested profile, in dependency order. Services without dependencies on
each other start in parallel. The command waits until every started
service accepts TCP connections on its published port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseSetFlags(sets)
			if err != nil {
				return err
			}
			return a.runUp(cmd.Context(), upInput{
				profile:   profile,
				overrides: overrides,
				timeout:   timeout,
				detach:    detach,
			})
		},
	}

	cmd.Flags().StringVarP(&profile, "profile", "p", "", "profile to activate in addition to always-on services")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "runtime parameter override, name=value (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-service readiness timeout (default from config)")
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "start containers without waiting for readiness")

	return cmd
}

type upInput struct {
	profile   string
	overrides map[string]string
	timeout   time.Duration
	detach    bool
}

func (a *app) runUp(ctx context.Context, in upInput) error {
	def, err := a.loadStack()
	if err != nil {
		return err
	}

	resolved, err := plan.ResolveParameters(def, in.overrides, os.LookupEnv)
	if err != nil {
		return err
	}
	for name, p := range resolved {
		a.logger.Debug("resolved parameter", "name", name, "value", p.Value, "source", p.Source)
	}

	if in.timeout > 0 {
		a.cfg.Probe.Timeout = in.timeout
	}

	// Detached runs skip readiness waiting: every started container counts
	// as ready
	var prober probe.Prober
	if in.detach {
		prober = alwaysReadyProber{}
	}

	o, cleanup, err := a.newOrchestrator(prober)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := store.NewRun(def.Name, store.OperationUp, in.profile, plan.Values(resolved))

	snap, upErr := o.Up(ctx, def, orchestrator.UpOptions{
		Profile:    in.profile,
		Parameters: plan.Values(resolved),
	})

	a.recordRun(run, snap)
	printSnapshot(os.Stdout, snap)

	return upErr
}

type alwaysReadyProber struct{}

func (alwaysReadyProber) WaitReady(ctx context.Context, target probe.Target) error {
	return nil
}

// recordRun persists the run outcome when history is enabled.
func (a *app) recordRun(run *store.Run, snap status.Snapshot) {
	history := a.openHistory()
	if history == nil {
		return
	}
	defer history.Close()

	run.Finish(snap)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := history.RecordRun(ctx, run); err != nil {
		a.logger.Warn("failed to record run", "error", err)
		return
	}
	if a.cfg.State.Keep > 0 {
		if _, err := history.PruneRuns(ctx, run.Stack, a.cfg.State.Keep); err != nil {
			a.logger.Warn("failed to prune run history", "error", err)
		}
	}
}

// parseSetFlags parses repeated --set name=value flags.
func parseSetFlags(sets []string) (map[string]string, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	overrides := make(map[string]string, len(sets))
	for _, s := range sets {
		name, value, ok := strings.Cut(s, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: invalid --set %q, expected name=value", errConfig, s)
		}
		overrides[name] = value
	}
	return overrides, nil
}
