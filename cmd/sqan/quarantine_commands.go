package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/iamvazu/SQAN/internal/broker"
	"github.com/iamvazu/SQAN/internal/ingest"
	"github.com/iamvazu/SQAN/internal/logging"
)

func newQuarantineCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarantine",
		Short: "Inspect and replay quarantined messages",
	}
	cmd.AddCommand(newQuarantineListCommand(ctx))
	cmd.AddCommand(newQuarantineReplayCommand(ctx))
	return cmd
}

func newQuarantineListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List messages written to paths.failed_dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			entries, err := ingest.List(cfg.Paths.FailedDir)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Quarantine is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{e.Name, strconv.FormatInt(e.Size, 10), formatTime(e.ModTime)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(cfg.Paths.FailedDir,
				[]string{"File", "Bytes", "Quarantined"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQuarantineReplayCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <file>...",
		Short: "Republish quarantined messages to the incoming topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			b, err := broker.Open(cmd.Context(), cfg.Broker, logging.NewNop())
			if err != nil {
				return err
			}
			defer b.Close()

			for _, name := range args {
				if err := ingest.Replay(cmd.Context(), cfg.Paths.FailedDir, name, b); err != nil {
					return fmt.Errorf("replay %s: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Replayed %s\n", name)
			}
			return nil
		},
	}
}
