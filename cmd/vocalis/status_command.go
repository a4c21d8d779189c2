package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vocalis/internal/daemonctl"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, snapshot)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if snapshot.Running {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", snapshot.PID), colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "Not running (start with `vocalisd`)", colorize))
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderCountsTable("Jobs", snapshot.Queue))
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderCountsTable("Submissions", snapshot.Submissions))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func renderCountsTable(label string, counts map[string]int) string {
	rows := make([][]string, 0, 4)
	for _, state := range []string{"pending", "processing", "completed", "failed"} {
		rows = append(rows, []string{state, fmt.Sprintf("%d", counts[state])})
	}
	return renderTable(
		[]string{label, "Count"},
		rows,
		[]columnAlignment{alignLeft, alignRight},
	)
}
