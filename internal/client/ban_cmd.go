package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/semp-project/semp/internal/models"
	"github.com/semp-project/semp/internal/transport"
)

func init() {
	rootCmd.AddCommand(banCmd)
}

// banCmd replaces the server-wide ban list. Only works when this client's
// key is the server's admin key.
var banCmd = &cobra.Command{
	Use:   "ban [host]...",
	Short: "Replace the server ban list (admin only)",
	Run: func(cmd *cobra.Command, args []string) {
		body, err := json.Marshal(models.SetBanHostsRequest(args))
		if err != nil {
			fmt.Println("Error building request:", err)
			return
		}
		if err := doSigned(http.MethodPatch, cfg.ServerURL+transport.DiscoveryPath, body, nil); err != nil {
			fmt.Println("Error updating ban list:", err)
			return
		}
		if len(args) == 0 {
			fmt.Println("Ban list cleared.")
			return
		}
		fmt.Printf("Ban list set to %d host(s).\n", len(args))
	},
}
