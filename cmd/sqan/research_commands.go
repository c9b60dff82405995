package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/iamvazu/SQAN/internal/admin"
	"github.com/iamvazu/SQAN/internal/store"
)

const timestampLayout = "2006-01-02 15:04"

func newResearchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "research",
		Short: "Inspect research groups and request re-QC",
	}
	cmd.AddCommand(newResearchListCommand(ctx))
	cmd.AddCommand(newResearchSummaryCommand(ctx))
	cmd.AddCommand(newResearchReQCCommand(ctx))
	return cmd
}

func newResearchListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every research",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(cmd.Context(), func(svc *admin.Service) error {
				research, err := svc.ListResearch(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, research)
				}
				if len(research) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No research found")
					return nil
				}
				rows := make([][]string, 0, len(research))
				for _, r := range research {
					rows = append(rows, []string{
						r.ID,
						optional(r.SiteID),
						r.Modality,
						r.StationName,
						optional(r.Radiotracer),
						formatTime(r.CreatedAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable("",
					[]string{"ID", "Site", "Modality", "Station", "Radiotracer", "Created"},
					rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newResearchSummaryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "summary <research-id>",
		Short: "Show per-series QC counts of a research",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(cmd.Context(), func(svc *admin.Service) error {
				summary, err := svc.Summary(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, summary)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderResearchSummary(summary))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderResearchSummary(summary *admin.ResearchSummary) string {
	r := summary.Research
	title := fmt.Sprintf("%s %s %s (site %s, tracer %s)", r.ID, r.Modality, r.StationName, optional(r.SiteID), optional(r.Radiotracer))
	rows := make([][]string, 0, len(summary.Series))
	for _, s := range summary.Series {
		rows = append(rows, []string{
			strconv.Itoa(s.SeriesNumber),
			s.Description,
			s.SeriesID,
			strconv.FormatInt(s.Subjects, 10),
			strconv.FormatInt(s.Stats.Images, 10),
			strconv.FormatInt(s.Stats.Pending, 10),
			strconv.FormatInt(s.Stats.Errors, 10),
			strconv.FormatInt(s.Stats.Warnings, 10),
			strconv.FormatInt(s.Stats.NoTemplate, 10),
			rollupDate(s.QC),
		})
	}
	return renderTable(title,
		[]string{"#", "Series", "ID", "Subjects", "Images", "Pending", "Errors", "Warnings", "NoTemp", "QC"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft})
}

func rollupDate(qc *store.SeriesQC) string {
	if qc == nil {
		return "-"
	}
	return formatTime(qc.Date)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timestampLayout)
}

func newResearchReQCCommand(ctx *commandContext) *cobra.Command {
	var req admin.ReQCRequest
	cmd := &cobra.Command{
		Use:   "reqc <research-id>",
		Short: "Re-enrol the images of every series of a research for QC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(cmd.Context(), func(svc *admin.Service) error {
				n, err := svc.ResearchReQC(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Re-enrolled %d images of research %s for QC\n", n, args[0])
				return nil
			})
		},
	}
	addReQCFlags(cmd, &req)
	return cmd
}

func addReQCFlags(cmd *cobra.Command, req *admin.ReQCRequest) {
	cmd.Flags().StringVar(&req.UserID, "user", "", "User recorded on the series event (required)")
	cmd.Flags().BoolVar(&req.FailedOnly, "failed-only", false, "Only re-enrol images with errors, warnings or no template")
	_ = cmd.MarkFlagRequired("user")
}
