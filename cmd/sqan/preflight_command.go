package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iamvazu/SQAN/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var ingestOnly, qcOnly, asJSON bool
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, store, broker settings and Redis before starting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts := preflight.Options{Ingest: !qcOnly, QC: !ingestOnly}
			results := preflight.RunAll(cmd.Context(), cfg, opts)
			if asJSON {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Preflight", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, r := range results {
					kind := statusOK
					if !r.Passed {
						kind = statusError
					}
					fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
				}
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return errors.New(pluralize(len(failed), "preflight check") + " failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&ingestOnly, "ingest", false, "Only run the checks needed by `sqan ingest`")
	cmd.Flags().BoolVar(&qcOnly, "qc", false, "Only run the checks needed by `sqan qc`")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.MarkFlagsMutuallyExclusive("ingest", "qc")
	return cmd
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
