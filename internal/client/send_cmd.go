package client

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/semp-project/semp/internal/crypto"
	"github.com/semp-project/semp/internal/identity"
	"github.com/semp-project/semp/internal/models"
)

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().String("seal", "", "Recipient's box public key (hex); encrypts the content end to end")
}

var sendCmd = &cobra.Command{
	Use:   "send <to> <text>",
	Short: "Send a message to @name.host",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		to, text := args[0], args[1]
		if _, err := identity.Resolve(to); err != nil {
			fmt.Println("Bad recipient address:", err)
			return
		}
		name, err := cfg.UserName()
		if err != nil {
			fmt.Println(err)
			return
		}
		key, err := cfg.SigningKey()
		if err != nil {
			fmt.Println(err)
			return
		}

		content := []byte(text)
		sealKeyHex, _ := cmd.Flags().GetString("seal")
		if sealKeyHex == "" {
			sealKeyHex = cfg.Contacts[to]
		}
		if sealKeyHex != "" {
			raw, err := hex.DecodeString(sealKeyHex)
			if err != nil || len(raw) != 32 {
				fmt.Println("Seal key must be 64 hex characters.")
				return
			}
			var boxKey [32]byte
			copy(boxKey[:], raw)
			content, err = crypto.Seal(content, &boxKey)
			if err != nil {
				fmt.Println("Error sealing content:", err)
				return
			}
			// Remember the key for next time.
			cfg.Contacts[to] = sealKeyHex
			if err := SaveConfigGlobal(); err != nil {
				fmt.Println("Warning: could not save contact:", err)
			}
		}

		payload := models.ExchangePayload{
			From:      cfg.Address,
			To:        to,
			Timestamp: crypto.CanonicalDate(time.Now()),
			Content:   hex.EncodeToString(content),
			Nonce:     uuid.NewString(),
		}
		msg := crypto.PayloadSigningString(payload.From, payload.To, payload.Timestamp,
			crypto.ContentHash(content), payload.Nonce)
		payload.Sign = crypto.SignHex(key, msg)

		body, err := json.Marshal(payload)
		if err != nil {
			fmt.Println("Error building request:", err)
			return
		}
		if err := doSigned(http.MethodPut, cfg.ServerURL+"/"+name, body, nil); err != nil {
			fmt.Println("Error sending:", err)
			return
		}
		fmt.Println("Sent to", to)
	},
}
