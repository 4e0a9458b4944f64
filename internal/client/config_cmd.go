package client

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/semp-project/semp/internal/crypto"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configInitCmd.Flags().String("server", "", "Server URL (e.g. https://msg.example.com)")
	configInitCmd.Flags().String("host", "", "Home hostname used in your address")
	configInitCmd.Flags().Bool("force", false, "Replace existing keys")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage client configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate keys and point the client at a server",
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		if len(cfg.SigningSeed) > 0 && !force {
			fmt.Println("Keys already exist. Use --force to replace them (this abandons the old identity).")
			return
		}

		if server, _ := cmd.Flags().GetString("server"); server != "" {
			cfg.ServerURL = server
		}
		if host, _ := cmd.Flags().GetString("host"); host != "" {
			cfg.HomeHost = host
		}
		if cfg.HomeHost == "" {
			fmt.Println("A home host is required: config init --host msg.example.com")
			return
		}

		identityPair, err := crypto.GenerateIdentityKeyPair()
		if err != nil {
			fmt.Println("Error generating identity key:", err)
			return
		}
		boxPair, err := crypto.GenerateExchangeKeyPair()
		if err != nil {
			fmt.Println("Error generating box key:", err)
			return
		}

		cfg.SigningSeed = identityPair.Private.Seed()
		cfg.BoxPublicKey = boxPair.Public[:]
		cfg.BoxPrivateKey = boxPair.Private[:]
		cfg.Address = ""

		if err := SaveConfigGlobal(); err != nil {
			fmt.Println("Error saving config:", err)
			return
		}
		fmt.Println("Config initialized.")
		fmt.Printf("Public key:     %x\n", identityPair.Public)
		fmt.Printf("Box public key: %x\n", boxPair.Public[:])
		fmt.Println("Run 'register --display-name <name>' to claim an address.")
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Server URL:", cfg.ServerURL)
		fmt.Println("Home host: ", cfg.HomeHost)
		if cfg.Address != "" {
			fmt.Println("Address:   ", cfg.Address)
		} else {
			fmt.Println("Address:    (not registered)")
		}
		if len(cfg.SigningSeed) > 0 {
			key, err := cfg.SigningKey()
			if err == nil {
				fmt.Printf("Public key: %x\n", key.Public())
			}
		}
		if len(cfg.BoxPublicKey) > 0 {
			fmt.Println("Box public key:", hex.EncodeToString(cfg.BoxPublicKey))
		}
	},
}
