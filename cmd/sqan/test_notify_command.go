package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

type testNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.newAPIClient()
			if err != nil {
				return err
			}
			var resp testNotificationResponse
			if err := client.do(cmd.Context(), http.MethodPost, "/api/notifications/test", &resp); err != nil {
				return err
			}
			switch {
			case resp.Message != "":
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			case resp.Sent:
				fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "Notification not sent")
			}
			return nil
		},
	}
}
