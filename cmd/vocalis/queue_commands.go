package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vocalis/internal/api"
	"vocalis/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the analysis job queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var stateFilters []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List analysis jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var states []queue.State
			for _, value := range stateFilters {
				trimmed := strings.TrimSpace(value)
				if trimmed == "" {
					continue
				}
				states = append(states, queue.State(trimmed))
			}

			return ctx.withService(cmd, func(svc *api.SubmissionService) error {
				jobs, err := svc.Jobs(cmd.Context(), states...)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.JobListResponse{Jobs: jobs})
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					attempts := fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts)
					rows = append(rows, []string{job.ID, job.OwnerID, job.State, attempts, job.ErrorMessage})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Job", "Owner", "State", "Attempts", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&stateFilters, "state", nil, "Filter by job state (pending, processing, completed, failed)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry [submission-id...]",
		Short: "Re-enqueue failed analyses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc *api.SubmissionService) error {
				requeued, err := svc.RetryFailed(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d failed analyses\n", requeued)
				return nil
			})
		},
	}
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all queue jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("queue clear removes every job; re-run with --yes to confirm")
			}
			return ctx.withService(cmd, func(svc *api.SubmissionService) error {
				removed, err := svc.ClearJobs(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d jobs\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm deletion")
	return cmd
}
