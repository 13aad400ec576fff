package types

import "github.com/pkg/errors"

// Capability is a feature flag a new device advertises in its link URL.
type Capability string

// CapabilityLinkAndSync lets the primary hand over an ephemeral backup key so
// the new device can pull a message backup after linking.
const CapabilityLinkAndSync Capability = "linknsync"

// ProvisioningURL is what a new device shows (usually as a QR code) to the
// primary.
type ProvisioningURL struct {
	EphemeralDeviceID EphemeralDeviceID
	PublicKey         X25519Public
	Capabilities      []Capability
}

// Has reports whether the URL advertises c.
func (u ProvisioningURL) Has(c Capability) bool {
	for _, have := range u.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// ProvisioningMessage is everything a primary hands a new device.
//
// EphemeralBackupKey and PeerExtraPublicKey are optional. A nil
// PeerExtraPublicKey is absent; a non-nil empty one is present and empty.
// Version has no default: zero is not a valid wire version.
type ProvisioningMessage struct {
	Version            uint32
	PhoneNumber        E164
	ACI                ACI
	PNI                PNI
	RootKey            RootKey
	ACIIdentityKeyPair IdentityKeyPair
	PNIIdentityKeyPair IdentityKeyPair
	ProfileKey         ProfileKey
	MediaRootBackupKey BackupKey
	EphemeralBackupKey *BackupKey
	ReadReceipts       bool
	ProvisioningCode   string
	PeerExtraPublicKey []byte
}

// IdentityKeyPair returns the pair for role.
func (m ProvisioningMessage) IdentityKeyPair(role IdentityRole) IdentityKeyPair {
	if role == RolePNI {
		return m.PNIIdentityKeyPair
	}
	return m.ACIIdentityKeyPair
}

// Validate checks the required fields. It does not look at Version.
func (m ProvisioningMessage) Validate() error {
	if _, err := ParseE164(m.PhoneNumber.String()); err != nil {
		return err
	}
	if m.ACI.IsZero() {
		return errors.Wrap(ErrIncompleteProvisioning, "aci missing")
	}
	if m.PNI.IsZero() {
		return errors.Wrap(ErrIncompleteProvisioning, "pni missing")
	}
	if err := ValidateRootKey(m.RootKey); err != nil {
		return err
	}
	if err := m.ACIIdentityKeyPair.Validate(); err != nil {
		return errors.WithMessage(err, "aci")
	}
	if err := m.PNIIdentityKeyPair.Validate(); err != nil {
		return errors.WithMessage(err, "pni")
	}
	if m.ProfileKey.IsZero() {
		return errors.Wrap(ErrIncompleteProvisioning, "profile key missing")
	}
	if m.MediaRootBackupKey.IsZero() {
		return errors.Wrap(ErrIncompleteProvisioning, "media root backup key missing")
	}
	if m.ProvisioningCode == "" {
		return errors.Wrap(ErrIncompleteProvisioning, "provisioning code missing")
	}
	return nil
}

// ProvisioningResult is what the primary keeps after a successful submit.
// EphemeralBackupKey is nil unless link-and-sync was negotiated.
type ProvisioningResult struct {
	EphemeralBackupKey *BackupKey
	TokenID            TokenID
}
