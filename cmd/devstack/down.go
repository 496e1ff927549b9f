package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/prillcode/devstack/internal/shell/orchestrator"
	"github.com/prillcode/devstack/internal/shell/store"
)

// =============================================================================
// Down Command
// =============================================================================

func newDownCmd(a *app) *cobra.Command {
	var removeVolumes bool

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop the stack and remove its containers",
		Long: `down stops every container belonging to the stack in reverse
dependency order, removes them along with the stack network, and keeps
named volumes so data survives the next up. Running down on an already
stopped stack is a no-op.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDown(cmd.Context(), removeVolumes)
		},
	}

	cmd.Flags().BoolVar(&removeVolumes, "volumes", false, "also remove the stack's named volumes")
	return cmd
}

func (a *app) runDown(ctx context.Context, removeVolumes bool) error {
	def, err := a.loadStack()
	if err != nil {
		return err
	}

	o, cleanup, err := a.newOrchestrator(nil)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := store.NewRun(def.Name, store.OperationDown, "", nil)

	downErr := o.Down(ctx, def, orchestrator.DownOptions{RemoveVolumes: removeVolumes})

	a.recordRun(run, o.Snapshot())
	return downErr
}
