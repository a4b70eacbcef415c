package cli

import (
	"github.com/spf13/cobra"

	"strata-netmon/internal/app"
)

var (
	showURL string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display per-domain freshness from a running instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ShowOptions{
			URL: showURL,
		}

		return getApp().Show(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showURL, "url", "", "Base URL of the instance (defaults to the configured listen address)")
}
