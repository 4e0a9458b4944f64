package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/semp-project/semp/internal/models"
)

func init() {
	rootCmd.AddCommand(deleteCmd)
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete messages from your inbox",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name, err := cfg.UserName()
		if err != nil {
			fmt.Println(err)
			return
		}

		body, err := json.Marshal(models.DeleteMessagesRequest{IDs: args})
		if err != nil {
			fmt.Println("Error building request:", err)
			return
		}
		if err := doSigned(http.MethodDelete, cfg.ServerURL+"/"+name, body, nil); err != nil {
			fmt.Println("Error deleting:", err)
			return
		}
		fmt.Printf("Deleted %d message(s).\n", len(args))
	},
}
