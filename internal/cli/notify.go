package cli

import (
	"github.com/spf13/cobra"

	"strata-netmon/internal/model"
)

var (
	notifyDomain string
)

var notifyTestCmd = &cobra.Command{
	Use:   "notify-test",
	Short: "Send a test failing notification through the configured channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().NotifyTest(cmd.Context(), model.Domain(notifyDomain))
	},
}

func init() {
	notifyTestCmd.Flags().StringVar(&notifyDomain, "domain", string(model.DomainStatus), "Domain named in the notification")
}
