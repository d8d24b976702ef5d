package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mnemonlabs/mnemon/internal/credential"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage provider API keys",
	Long: `Keys are sealed with a machine-derived AES-256-GCM key before they
reach the configuration table, so the database file alone does not
leak them.`,
}

var keysSetCmd = &cobra.Command{
	Use:   "set [provider] [api-key]",
	Short: "Store an API key for a provider",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]
		key := args[1]

		vault, err := credential.NewVault()
		if err != nil {
			fmt.Printf("Failed to open credential vault: %v\n", err)
			os.Exit(1)
		}
		sealed, err := vault.Seal(key)
		if err != nil {
			fmt.Printf("Failed to seal key: %v\n", err)
			os.Exit(1)
		}

		s := getStorage()
		defer s.Close()

		if err := s.SetConfig(credential.ConfigKey(name), sealed); err != nil {
			fmt.Printf("Failed to store key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("API key stored for %s\n", name)
	},
}

var keysShowCmd = &cobra.Command{
	Use:   "show [provider]",
	Short: "Show a masked API key",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]

		s := getStorage()
		defer s.Close()

		stored, err := s.GetConfig(credential.ConfigKey(name))
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if stored == "" {
			fmt.Println("(not set)")
			return
		}

		vault, err := credential.NewVault()
		if err != nil {
			fmt.Printf("Failed to open credential vault: %v\n", err)
			os.Exit(1)
		}
		key, err := vault.Open(stored)
		if err != nil {
			fmt.Printf("Failed to open key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(credential.Mask(key))
	},
}

func init() {
	RootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysSetCmd)
	keysCmd.AddCommand(keysShowCmd)
}
