package client

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/semp-project/semp/internal/models"
	"github.com/semp-project/semp/internal/transport"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the server's discovery document",
	Run: func(cmd *cobra.Command, args []string) {
		var status models.ServerStatus
		if err := doPlain(http.MethodGet, cfg.ServerURL+transport.DiscoveryPath, &status); err != nil {
			fmt.Println("Error fetching status:", err)
			return
		}

		fmt.Println("Protocol version: ", status.Semp)
		fmt.Printf("Server public key: %x\n", []byte(status.ServerPublicKey))
		fmt.Println("Server admin:     ", status.ServerAdmin)
		fmt.Println("Open registration:", status.OpenRegistration)
		if len(status.BanHosts) > 0 {
			fmt.Println("Banned hosts:")
			for _, h := range status.BanHosts {
				fmt.Println("  -", h)
			}
		}
	},
}
