package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the WarpCall version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "warpcall", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
