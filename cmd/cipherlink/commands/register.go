package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Publish pre-keys for both identities to the coordination service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.Prekey.FinalizeRegistrationPreKeys(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Registered pre-keys with relay")
			return nil
		},
	}
	return cmd
}
