package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iamvazu/SQAN/internal/admin"
)

func newSeriesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "series",
		Short: "Re-QC a series or pin it to a template exam",
	}
	cmd.AddCommand(newSeriesReQCCommand(ctx))
	cmd.AddCommand(newSeriesPinCommand(ctx))
	cmd.AddCommand(newSeriesUnpinCommand(ctx))
	return cmd
}

func newSeriesReQCCommand(ctx *commandContext) *cobra.Command {
	var req admin.ReQCRequest
	cmd := &cobra.Command{
		Use:   "reqc <series-id>",
		Short: "Re-enrol the images of one series for QC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(cmd.Context(), func(svc *admin.Service) error {
				n, err := svc.SeriesReQC(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Re-enrolled %d images of series %s for QC\n", n, args[0])
				return nil
			})
		},
	}
	addReQCFlags(cmd, &req)
	return cmd
}

func newSeriesPinCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pin <series-id> <template-exam-id>",
		Short: "Compare a series against a specific template exam",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(cmd.Context(), func(svc *admin.Service) error {
				if err := svc.PinTemplateExam(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Series %s pinned to template exam %s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func newSeriesUnpinCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unpin <series-id>",
		Short: "Return a series to the latest template exam of its research",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(cmd.Context(), func(svc *admin.Service) error {
				if err := svc.UnpinTemplateExam(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Series %s follows the latest template exam\n", args[0])
				return nil
			})
		},
	}
}
