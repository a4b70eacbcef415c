package cli

import (
	"github.com/spf13/cobra"
)

var (
	mockFixtures string
)

var mockRPCCmd = &cobra.Command{
	Use:   "mock-rpc",
	Short: "Serve canned strata, bridge, bundler and explorer upstreams for local development",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().MockRPC(cmd.Context(), mockFixtures)
	},
}

func init() {
	mockRPCCmd.Flags().StringVar(&mockFixtures, "fixtures", "", "Directory whose JSON files replace the embedded fixtures")
}
