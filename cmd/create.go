package cmd

import (
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c"},
	Short:   "Create a room and wait for someone to join the call",
	Long: `Create a room on the relay, print its ID and link, and start the call as
soon as the other participant joins.

Examples:
  warpcall create --video camera.ivf --audio mic.ogg --loop
  warpcall create --domain custom.example.com
  warpcall create --relay --stay`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCall(cmd, "")
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	addCallFlags(createCmd.Flags())
}
