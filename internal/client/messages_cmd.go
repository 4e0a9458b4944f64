package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/semp-project/semp/internal/crypto"
	"github.com/semp-project/semp/internal/models"
)

func init() {
	rootCmd.AddCommand(messagesCmd)
	messagesCmd.Flags().String("since", "", "Only messages after this id")
	messagesCmd.Flags().Int("limit", 20, "Maximum number of messages")
	messagesCmd.Flags().Bool("open", false, "Decrypt sealed content with the local box key")
}

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Fetch your inbox",
	Run: func(cmd *cobra.Command, args []string) {
		name, err := cfg.UserName()
		if err != nil {
			fmt.Println(err)
			return
		}
		since, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("limit")
		open, _ := cmd.Flags().GetBool("open")

		body, err := json.Marshal(models.GetMessagesRequest{Since: since, Limit: limit})
		if err != nil {
			fmt.Println("Error building request:", err)
			return
		}

		var messages []models.Message
		if err := doSigned(http.MethodPost, cfg.ServerURL+"/"+name, body, &messages); err != nil {
			fmt.Println("Error fetching messages:", err)
			return
		}
		if len(messages) == 0 {
			fmt.Println("No messages.")
			return
		}

		for _, msg := range messages {
			content := []byte(msg.Content)
			note := ""
			if open && len(cfg.BoxPrivateKey) == 32 {
				var boxKey [32]byte
				copy(boxKey[:], cfg.BoxPrivateKey)
				if opened, err := crypto.Open(content, &boxKey); err == nil {
					content = opened
				} else {
					note = " (sealed, could not open)"
				}
			}
			fmt.Printf("[%s] %s %s%s\n  %s\n",
				msg.ID, msg.Timestamp.Format("2006-01-02 15:04"), msg.From, note, content)
		}
	},
}
