package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	provproto "cipherlink/internal/protocol/provisioning"
)

// link-device <url>: hand this account's keys to the device showing url.
func linkDeviceCmd() *cobra.Command {
	var linkAndSync bool
	cmd := &cobra.Command{
		Use:   "link-device <url>",
		Short: "Link the device that shows <url> to this account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := provproto.ParseURL(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("link-and-sync") {
				linkAndSync = wire.Config.LinkAndSync
			}
			res, err := wire.Initiator.Provision(cmd.Context(), u, linkAndSync)
			if err != nil {
				return err
			}
			fmt.Printf("Provisioning message sent.\nToken: %s\n", res.TokenID)
			if res.EphemeralBackupKey != nil {
				fmt.Println("Link and sync: the new device can now fetch a message backup")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&linkAndSync, "link-and-sync", false, "offer a message backup to the new device")
	return cmd
}
