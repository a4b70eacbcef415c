package cli

import (
	"github.com/spf13/cobra"
)

var (
	keysRaw  bool
	keysPath string
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Print the activity key document in effect",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if keysPath != "" {
			a.Config.Activity.KeysPath = keysPath
		}
		return a.PrintKeys(cmd.OutOrStdout(), keysRaw)
	},
}

func init() {
	keysCmd.Flags().BoolVar(&keysRaw, "raw", false, "Write the JSON document instead of a table")
	keysCmd.Flags().StringVar(&keysPath, "path", "", "Validate this key document instead of the configured one")
}
