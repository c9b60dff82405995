package main

import (
	"github.com/spf13/cobra"

	"github.com/iamvazu/SQAN/internal/daemonrun"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newDaemonRunCommand(ctx, "run", "Run ingestion and QC in the foreground", daemonrun.ModeAll),
		newDaemonRunCommand(ctx, "ingest", "Run only the ingestion consumer in the foreground", daemonrun.ModeIngest),
		newDaemonRunCommand(ctx, "qc", "Run only the QC batch engine in the foreground", daemonrun.ModeQC),
	}
}

func newDaemonRunCommand(ctx *commandContext, use, short string, mode daemonrun.Mode) *cobra.Command {
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				Mode:        mode,
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	return cmd
}
