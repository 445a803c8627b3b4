package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/internal/ui"
	"github.com/BioHazard786/Warpcall/internal/version"
)

var flagConfigFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warpcall",
	Short: "Two-party WebRTC calls over a tiny room relay",
	Long: `WarpCall connects two people in a call using WebRTC. A small relay pairs
them in a room and forwards their session descriptions and network
candidates; audio and video then flow directly between the two peers, or
through TURN when no direct path exists.

Run "warpcall serve" to host a relay, "warpcall create" to open a room and
"warpcall join" to enter one.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "Config file (yaml, toml or json)")
}
