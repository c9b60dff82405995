package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iamvazu/SQAN/internal/admin"
)

func newTemplateCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Inspect templates",
	}
	cmd.AddCommand(newTemplateHeadCommand(ctx))
	return cmd
}

func newTemplateHeadCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "head <template-id>",
		Short: "Show a template and its reference instance headers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(cmd.Context(), func(svc *admin.Service) error {
				head, err := svc.TemplateHead(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, head)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTemplateHead(head))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON (includes full headers)")
	return cmd
}

func renderTemplateHead(head *admin.TemplateHead) string {
	t := head.Template
	var b strings.Builder
	fmt.Fprintf(&b, "Template:  %s (%s #%d, %d instances)\n", t.ID, t.Description, t.SeriesNumber, t.Count)
	fmt.Fprintf(&b, "Exam:      %s (%s)\n", t.ExamID, formatTime(t.Timestamp))
	fmt.Fprintf(&b, "Research:  %s %s %s\n", head.Research.ID, head.Research.Modality, head.Research.StationName)

	rows := make([][]string, 0, len(head.Headers))
	for _, h := range head.Headers {
		rows = append(rows, []string{
			optional(h.AcquisitionNumber),
			optional(h.InstanceNumber),
			optional(h.EchoNumber),
			strconv.FormatInt(h.Count, 10),
			strconv.Itoa(len(h.Headers)),
			formatTime(h.UpdatedAt),
		})
	}
	b.WriteString(renderTable("",
		[]string{"Acq", "Instance", "Echo", "Count", "Fields", "Updated"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft}))
	return b.String()
}
