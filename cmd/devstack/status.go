package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/prillcode/devstack/internal/core/status"
)

// =============================================================================
// Status Command
// =============================================================================

func newStatusCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the stack's services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runStatus(cmd.Context(), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func (a *app) runStatus(ctx context.Context, asJSON bool) error {
	def, err := a.loadStack()
	if err != nil {
		return err
	}

	o, cleanup, err := a.newOrchestrator(nil)
	if err != nil {
		return err
	}
	defer cleanup()

	snap, err := o.Status(ctx, def.Name)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	printSnapshot(os.Stdout, snap)
	return nil
}

// printSnapshot writes a human-readable stack summary.
func printSnapshot(w io.Writer, snap status.Snapshot) {
	fmt.Fprintf(w, "stack %s: %s", snap.Stack, snap.State)
	if snap.Profile != "" {
		fmt.Fprintf(w, " (profile %s)", snap.Profile)
	}
	fmt.Fprintln(w)

	if len(snap.Services) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tSTATE\tELAPSED\tDETAIL")
	for _, s := range snap.Services {
		elapsed := ""
		if s.Elapsed > 0 {
			elapsed = s.Elapsed.Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Service, s.State, elapsed, s.Reason)
	}
	tw.Flush()
}
