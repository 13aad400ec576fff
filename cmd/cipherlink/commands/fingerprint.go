package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherlink/internal/domain"
)

func fingerprintCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print identity fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := domain.ParseIdentityRole(role)
			if err != nil {
				return err
			}
			fp, err := wire.Identity.FingerprintIdentity(r)
			if err != nil {
				return err
			}
			fmt.Printf("Fingerprint (%s): %s\n", r, fp)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(domain.RoleACI), "identity role (aci or pni)")
	return cmd
}
