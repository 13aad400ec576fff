package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherlink/internal/domain"
	"cipherlink/internal/services/identity"
)

func initCmd() *cobra.Command {
	var phone string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new account with this device as its primary",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := identity.ValidatePassphrase(wire.Config.Passphrase); err != nil {
				return err
			}
			ids, err := wire.Identity.RegisterPrimary(domain.E164(phone))
			if err != nil {
				return err
			}
			fp, err := wire.Identity.FingerprintIdentity(domain.RoleACI)
			if err != nil {
				return err
			}
			fmt.Printf("Account created.\nACI: %s\nPNI: %s\nNumber: %s\nFingerprint: %s\n",
				ids.ACI, ids.PNI, ids.PhoneNumber, fp)
			return nil
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "account phone number in E.164 form (e.g. +15555550100)")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}
