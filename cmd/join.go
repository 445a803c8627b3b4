package cmd

import (
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/internal/config"
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id|url>",
	Aliases: []string{"j"},
	Short:   "Join a room and start the call",
	Long: `Join an existing room by its ID or room link and call whoever is
waiting there.

Examples:
  warpcall join brave-otter-sings-loudly
  warpcall join https://warpcall.qzz.io/r/brave-otter-sings-loudly
  warpcall join --audio mic.ogg brave-otter-sings-loudly`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := config.ParseRoom(args[0])
		if err != nil {
			return err
		}
		return runCall(cmd, roomID)
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)
	addCallFlags(joinCmd.Flags())
}
