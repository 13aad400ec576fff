package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherlink/internal/domain"
	provproto "cipherlink/internal/protocol/provisioning"
)

// await-link: show a link URL and wait for the primary to provision us.
func awaitLinkCmd() *cobra.Command {
	var deviceName string
	cmd := &cobra.Command{
		Use:   "await-link",
		Short: "Show a link URL and wait until a primary links this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if deviceName == "" {
				deviceName = wire.Config.DeviceName
			}
			var caps []domain.Capability
			if wire.Config.LinkAndSync {
				caps = append(caps, domain.CapabilityLinkAndSync)
			}
			res, err := wire.Acceptor.AcceptFromMailbox(cmd.Context(), deviceName, caps,
				func(u domain.ProvisioningURL) {
					fmt.Printf("On your primary device run:\n  cipherlink link-device '%s'\n",
						provproto.FormatURL(u))
				})
			if err != nil {
				return err
			}
			fmt.Printf("Linked as device %d (%s)\n", res.State.DeviceID, res.State.DeviceName)
			return nil
		},
	}
	cmd.Flags().StringVar(&deviceName, "device-name", "", "name to register this device under")
	return cmd
}
