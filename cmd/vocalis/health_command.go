package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"vocalis/internal/analysis"
	"vocalis/internal/daemonctl"
	"vocalis/internal/logging"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check daemon and analysis service health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			client := daemonctl.NewClient(cfg)
			health, err := client.Health(cmd.Context())
			daemonUp := err == nil
			if err != nil && !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				return err
			}

			if !daemonUp {
				// The daemon is down; probe the analysis service directly.
				probe := analysis.NewClient(cfg, logging.NewNop())
				status, probeErr := probe.Health(cmd.Context())
				if jsonOut {
					payload := map[string]any{"daemon": false}
					if probeErr != nil {
						payload["analysisError"] = probeErr.Error()
					} else {
						payload["analysis"] = status
					}
					return writeJSON(cmd, payload)
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "Not running", colorize))
				if probeErr != nil {
					fmt.Fprintln(out, renderStatusLine("Analysis", statusError, probeErr.Error(), colorize))
				} else {
					fmt.Fprintln(out, renderStatusLine("Analysis", statusOK, analysisDetail(status.Status, status.ModelLoaded, status.Version), colorize))
				}
				return nil
			}

			if jsonOut {
				return writeJSON(cmd, health)
			}
			fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, "Running", colorize))
			switch {
			case health.Error != "":
				fmt.Fprintln(out, renderStatusLine("Analysis", statusError, health.Error, colorize))
			case health.Analysis != nil && health.Analysis.ModelLoaded:
				fmt.Fprintln(out, renderStatusLine("Analysis", statusOK, analysisDetail(health.Analysis.Status, true, health.Analysis.Version), colorize))
			case health.Analysis != nil:
				fmt.Fprintln(out, renderStatusLine("Analysis", statusWarn, "Model not loaded", colorize))
			default:
				fmt.Fprintln(out, renderStatusLine("Analysis", statusWarn, "No probe result", colorize))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func analysisDetail(status string, modelLoaded bool, version string) string {
	detail := status
	if version != "" {
		detail = fmt.Sprintf("%s (v%s)", detail, version)
	}
	if !modelLoaded {
		detail += ", model not loaded"
	}
	return detail
}
