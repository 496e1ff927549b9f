package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/prillcode/devstack/internal/shell/docker"
)

// =============================================================================
// Logs Command
// =============================================================================

func newLogsCmd(a *app) *cobra.Command {
	var (
		follow     bool
		tail       string
		timestamps bool
	)

	cmd := &cobra.Command{
		Use:   "logs SERVICE",
		Short: "Show logs from one of the stack's services",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLogs(cmd.Context(), args[0], docker.LogOptions{
				Follow:     follow,
				Tail:       tail,
				Timestamps: timestamps,
			})
		},
	}

	cmd.Flags().BoolVar(&follow, "follow", false, "keep streaming new log output")
	cmd.Flags().StringVar(&tail, "tail", "all", "number of lines to show from the end of the logs")
	cmd.Flags().BoolVar(&timestamps, "timestamps", false, "prefix each line with its timestamp")

	return cmd
}

func (a *app) runLogs(ctx context.Context, service string, opts docker.LogOptions) error {
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

	reader, err := o.Logs(ctx, def.Name, service, opts)
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(os.Stdout, reader)
	if ctx.Err() != nil {
		// Interrupted follow is a normal exit
		return nil
	}
	return err
}
