package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/prillcode/devstack/internal/shell/store"
)

// =============================================================================
// History Command
// =============================================================================

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent up and down runs for the stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runHistory(cmd.Context(), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")
	return cmd
}

func (a *app) runHistory(ctx context.Context, limit int) error {
	def, err := a.loadStack()
	if err != nil {
		return err
	}

	history := a.openHistory()
	if history == nil {
		return fmt.Errorf("%w: run history is disabled", errConfig)
	}
	defer history.Close()

	runs, err := history.ListRuns(ctx, def.Name, store.ListOptions{Limit: limit})
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Printf("no recorded runs for stack %s\n", def.Name)
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tOPERATION\tPROFILE\tOUTCOME\tDURATION\tID")
	for _, r := range runs {
		duration := ""
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.Operation, r.Profile, r.Outcome, duration, r.ID,
		)
	}
	return tw.Flush()
}
