package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vocalis/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var priority int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "submit <recording-file>",
		Short: "Store a recording and queue it for analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner = strings.TrimSpace(owner)
			if owner == "" {
				return fmt.Errorf("--owner is required")
			}

			source := args[0]
			file, err := os.Open(source)
			if err != nil {
				return fmt.Errorf("open recording: %w", err)
			}
			defer file.Close()
			info, err := file.Stat()
			if err != nil {
				return fmt.Errorf("stat recording: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("recording path %q is a directory", source)
			}

			var resp *api.SubmitResponse
			if err := ctx.withService(cmd, func(svc *api.SubmissionService) error {
				var ingestErr error
				resp, ingestErr = svc.Ingest(cmd.Context(), owner, filepath.Base(source), file, info.Size(), "audio/wav", priority)
				return ingestErr
			}); err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submitted %s for analysis\n", filepath.Base(source))
			fmt.Fprintf(out, "  submission: %s\n", resp.Submission.ID)
			fmt.Fprintf(out, "  job:        %s\n", resp.Job.ID)
			fmt.Fprintf(out, "Poll with `vocalis show %s`.\n", resp.Submission.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Owner id for the submission")
	cmd.Flags().IntVar(&priority, "priority", 0, "Ordering hint, higher runs sooner")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}
