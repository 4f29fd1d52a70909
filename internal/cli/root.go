// Package cli holds the swaprouter command tree.
package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	serverURL  string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "swaprouter",
	Short: "Atomic two-hop swaps across order-book markets",
	Long: `swaprouter runs a router that converts asset A to C through an
intermediate asset B across two markets, all or nothing.

Examples:
  swaprouter serve --config swaprouter.yaml
  swaprouter keygen --out id.json
  swaprouter markets
  swaprouter quote 1000000 --from <market> --to <market> --hint bid-ask --keypair id.json
  swaprouter swap 1000000 --from <market> --to <market> --hint bid-ask --min-out 990 --keypair id.json`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Router HTTP address for client commands")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
}
