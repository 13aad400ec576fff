package commands

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
)

// account <service-id>: print the stored account record.
func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account <service-id>",
		Short: "Show the account record stored for a service id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sid := domain.ServiceID(args[0])
			rec, ok, err := wire.Records.GetAccountRecord(cmd.Context(), sid)
			if err != nil {
				return err
			}
			if !ok {
				return errors.Wrapf(domain.ErrNotFound, "account record %s", sid)
			}
			fmt.Printf("Service id: %s\n", rec.RecipientServiceID)
			fmt.Printf("Number: %s\n", rec.RecipientPhoneNumber)
			fmt.Printf("Version: %d\n", rec.RecordVersion)
			if !rec.HasPeerExtraPublicKey() {
				fmt.Println("Peer extra public key: none")
				return nil
			}
			fmt.Printf("Peer extra public key: %s (stored %s)\n",
				crypto.Fingerprint(rec.PeerExtraPublicKey),
				time.UnixMilli(*rec.PeerExtraPublicKeyTimestamp).UTC().Format(time.RFC3339))
			return nil
		},
	}
	return cmd
}
