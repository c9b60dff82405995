package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/iamvazu/SQAN/internal/daemon"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, ingest and QC status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.newAPIClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			var status daemon.Status
			if err := client.do(cmd.Context(), http.MethodGet, "/api/status", &status); err != nil {
				if !errors.Is(err, errDaemonUnreachable) {
					return err
				}
				if asJSON {
					return writeJSON(cmd, daemon.Status{})
				}
				for _, line := range renderSectionHeader("SQAN", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", statusError, "Not running", colorize))
				return nil
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			for _, line := range statusLines(status, colorize) {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
