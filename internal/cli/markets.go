package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "List the markets a router serves",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ms, err := newAPIClient(serverURL).Markets(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(ms)
		}
		for _, m := range ms {
			status := color.GreenString("open")
			if m.Halted {
				status = color.RedString("halted")
			}
			fmt.Printf("%s  %s\n  base %s\n  quote %s\n", m.Accounts.Market, status, m.Accounts.BaseMint, m.Accounts.QuoteMint)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(marketsCmd)
}
