package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/semp-project/semp/internal/models"
)

func init() {
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().String("display-name", "", "New display name")
	updateCmd.Flags().StringSlice("ban-host", nil, "Hosts to refuse messages from (replaces the list)")
	updateCmd.Flags().StringSlice("ban-user", nil, "Addresses to refuse messages from (replaces the list)")
	updateCmd.Flags().Bool("untrust", false, "Mark this account untrusted (cannot be undone)")
}

var userCmd = &cobra.Command{
	Use:   "user <name>",
	Short: "Look up a user's public record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var user models.UserRecord
		if err := doPlain(http.MethodGet, cfg.ServerURL+"/"+args[0], &user); err != nil {
			fmt.Println("Error fetching user:", err)
			return
		}

		fmt.Println("Name:        ", user.Name)
		fmt.Println("Display name:", user.DisplayName)
		fmt.Printf("Public key:   %x\n", []byte(user.PublicKey))
		if user.UntrustedAt != nil {
			fmt.Println("UNTRUSTED since", user.UntrustedAt.Format("2006-01-02"))
		}
		if len(user.BanHosts) > 0 {
			fmt.Println("Banned hosts: ", user.BanHosts)
		}
		if len(user.BanUsers) > 0 {
			fmt.Println("Banned users: ", user.BanUsers)
		}
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update your own record",
	Run: func(cmd *cobra.Command, args []string) {
		name, err := cfg.UserName()
		if err != nil {
			fmt.Println(err)
			return
		}

		display, _ := cmd.Flags().GetString("display-name")
		banHosts, _ := cmd.Flags().GetStringSlice("ban-host")
		banUsers, _ := cmd.Flags().GetStringSlice("ban-user")
		untrust, _ := cmd.Flags().GetBool("untrust")

		// The current record is fetched first so an update without ban
		// flags does not wipe the stored lists.
		var current models.UserRecord
		if err := doPlain(http.MethodGet, cfg.ServerURL+"/"+name, &current); err != nil {
			fmt.Println("Error fetching current record:", err)
			return
		}
		if !cmd.Flags().Changed("ban-host") {
			banHosts = current.BanHosts
		}
		if !cmd.Flags().Changed("ban-user") {
			banUsers = current.BanUsers
		}
		if current.UntrustedAt != nil {
			untrust = true
		}

		body, err := json.Marshal(models.UpdateUserRequest{
			DisplayName: display,
			BanHosts:    banHosts,
			BanUsers:    banUsers,
			Untrusted:   untrust,
		})
		if err != nil {
			fmt.Println("Error building request:", err)
			return
		}
		if err := doSigned(http.MethodPatch, cfg.ServerURL+"/"+name, body, nil); err != nil {
			fmt.Println("Error updating:", err)
			return
		}
		fmt.Println("Updated.")
	},
}
