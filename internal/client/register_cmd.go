package client

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/semp-project/semp/internal/models"
	"github.com/semp-project/semp/internal/transport"
)

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.Flags().String("display-name", "", "Display name shown to other users")
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register this client's key with the home server",
	Run: func(cmd *cobra.Command, args []string) {
		display, _ := cmd.Flags().GetString("display-name")
		if display == "" {
			fmt.Println("A display name is required: register --display-name \"Alice\"")
			return
		}
		key, err := cfg.SigningKey()
		if err != nil {
			fmt.Println(err)
			return
		}
		if cfg.HomeHost == "" {
			fmt.Println("No home host configured. Use 'config init --host <host>' first.")
			return
		}

		body, err := json.Marshal(models.CreateUserRequest{
			PublicKey:   hex.EncodeToString(key.Public().(ed25519.PublicKey)),
			DisplayName: display,
		})
		if err != nil {
			fmt.Println("Error building request:", err)
			return
		}

		var resp models.CreateUserResponse
		if err := doSigned(http.MethodPut, cfg.ServerURL+transport.DiscoveryPath, body, &resp); err != nil {
			fmt.Println("Error registering:", err)
			return
		}

		cfg.Address = "@" + resp.Name + "." + cfg.HomeHost
		if err := SaveConfigGlobal(); err != nil {
			fmt.Println("Error saving config:", err)
			return
		}
		fmt.Println("Registered as", cfg.Address)
	},
}
