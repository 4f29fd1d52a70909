package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
)

var (
	keygenOut   string
	keygenForce bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Create a principal keypair in Solana keygen format",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := solana.NewRandomPrivateKey()
		if err != nil {
			return err
		}
		if err := writeKeygenFile(keygenOut, key, keygenForce); err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(map[string]string{"public_key": key.PublicKey().String(), "path": keygenOut})
		}
		color.Green("Wrote %s", keygenOut)
		fmt.Printf("  public key: %s\n", key.PublicKey())
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "id.json", "Output path")
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "Overwrite an existing file")
	rootCmd.AddCommand(keygenCmd)
}

// writeKeygenFile stores key as a JSON array of bytes.
func writeKeygenFile(path string, key solana.PrivateKey, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	raw := make([]int, len(key))
	for i, b := range key {
		raw[i] = int(b)
	}
	if err := json.NewEncoder(f).Encode(raw); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
