package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vocalis/internal/api"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var owner string

	cmd := &cobra.Command{
		Use:   "show [submission-id]",
		Short: "Show a submission, or list an owner's submissions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				owner = strings.TrimSpace(owner)
				if owner == "" {
					return fmt.Errorf("provide a submission id or --owner")
				}
				return ctx.withService(cmd, func(svc *api.SubmissionService) error {
					subs, err := svc.List(cmd.Context(), owner, 0)
					if err != nil {
						return err
					}
					if jsonOut {
						return writeJSON(cmd, api.SubmissionListResponse{Submissions: subs})
					}
					rows := make([][]string, 0, len(subs))
					for _, sub := range subs {
						rows = append(rows, []string{sub.ID, sub.FileName, sub.Status, sub.CreatedAt})
					}
					fmt.Fprintln(cmd.OutOrStdout(), renderTable(
						[]string{"Submission", "File", "Status", "Created"},
						rows,
						nil,
					))
					return nil
				})
			}

			return ctx.withService(cmd, func(svc *api.SubmissionService) error {
				detail, err := svc.Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, detail)
				}
				printSubmission(cmd, detail)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "List submissions for this owner")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func printSubmission(cmd *cobra.Command, detail *api.SubmissionResponse) {
	out := cmd.OutOrStdout()
	sub := detail.Submission
	fmt.Fprintf(out, "Submission %s\n", sub.ID)
	fmt.Fprintf(out, "  owner:     %s\n", sub.OwnerID)
	fmt.Fprintf(out, "  recording: %s\n", sub.RecordingKey)
	fmt.Fprintf(out, "  status:    %s\n", sub.Status)
	if sub.ErrorMessage != "" {
		fmt.Fprintf(out, "  error:     %s (%s)\n", sub.ErrorMessage, sub.ErrorCode)
	}
	if sub.Result != nil {
		fmt.Fprintf(out, "  condition: %s (confidence %.2f)\n", sub.Result.Condition, sub.Result.Confidence)
		fmt.Fprintf(out, "  health:    %.1f\n", sub.Result.HealthScore)
		for _, rec := range sub.Result.Recommendations {
			fmt.Fprintf(out, "    - %s\n", rec)
		}
	}
	if detail.Job != nil {
		fmt.Fprintf(out, "  job:       %s (%s, attempt %d/%d)\n", detail.Job.ID, detail.Job.State, detail.Job.Attempts, detail.Job.MaxAttempts)
		if detail.Job.ErrorMessage != "" {
			fmt.Fprintf(out, "  job error: %s\n", detail.Job.ErrorMessage)
		}
	}
}
