package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/iamvazu/SQAN/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var opts logs.StreamOptions
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the current daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, "sqan.log")
			out := cmd.OutOrStdout()
			printed, err := logs.Stream(cmd.Context(), path, opts, func(line string) {
				fmt.Fprintln(out, line)
			})
			if err != nil {
				return err
			}
			if !printed && !opts.Follow {
				fmt.Fprintf(out, "No log lines in %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&opts.Lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&opts.Contains, "grep", "", "Only show lines containing this text")
	return cmd
}
