package types

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/ttacon/libphonenumber"
)

// ACI is the account's primary stable identifier.
type ACI uuid.UUID

// NewACI returns a random ACI.
func NewACI() ACI { return ACI(uuid.New()) }

// ParseACI parses the canonical UUID form of an ACI.
func ParseACI(s string) (ACI, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ACI{}, errors.Wrapf(ErrInvalidServiceID, "aci %q", s)
	}
	return ACI(u), nil
}

// String returns the canonical UUID form.
func (a ACI) String() string { return uuid.UUID(a).String() }

// IsZero reports whether a is the nil UUID.
func (a ACI) IsZero() bool { return uuid.UUID(a) == uuid.Nil }

// ServiceID returns the record-store key for a.
func (a ACI) ServiceID() ServiceID { return ServiceID(a.String()) }

// MarshalText implements encoding.TextMarshaler.
func (a ACI) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *ACI) UnmarshalText(b []byte) error {
	v, err := ParseACI(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// PNI is the privacy-preserving secondary identifier tied to the phone number.
type PNI uuid.UUID

const pniPrefix = "PNI:"

// NewPNI returns a random PNI.
func NewPNI() PNI { return PNI(uuid.New()) }

// ParsePNI accepts both the prefixed ("PNI:<uuid>") and bare UUID forms.
func ParsePNI(s string) (PNI, error) {
	u, err := uuid.Parse(strings.TrimPrefix(s, pniPrefix))
	if err != nil {
		return PNI{}, errors.Wrapf(ErrInvalidServiceID, "pni %q", s)
	}
	return PNI(u), nil
}

// String returns the prefixed service id form.
func (p PNI) String() string { return pniPrefix + uuid.UUID(p).String() }

// RawUUID returns the UUID without the service id prefix.
func (p PNI) RawUUID() string { return uuid.UUID(p).String() }

// IsZero reports whether p is the nil UUID.
func (p PNI) IsZero() bool { return uuid.UUID(p) == uuid.Nil }

// ServiceID returns the record-store key for p.
func (p PNI) ServiceID() ServiceID { return ServiceID(p.String()) }

// MarshalText implements encoding.TextMarshaler.
func (p PNI) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PNI) UnmarshalText(b []byte) error {
	v, err := ParsePNI(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ServiceID keys account records. It is the string form of an ACI or PNI.
type ServiceID string

// String returns the string form of the service id.
func (s ServiceID) String() string { return string(s) }

// E164 is a phone number in canonical E.164 form, e.g. "+17875550100".
type E164 string

// ParseE164 accepts only numbers already in canonical E.164 form.
func ParseE164(s string) (E164, error) {
	if !strings.HasPrefix(s, "+") {
		return "", errors.Wrapf(ErrInvalidE164, "%q", s)
	}
	num, err := libphonenumber.Parse(s, "")
	if err != nil {
		return "", errors.Wrapf(ErrInvalidE164, "%q: %v", s, err)
	}
	if libphonenumber.Format(num, libphonenumber.E164) != s {
		return "", errors.Wrapf(ErrInvalidE164, "%q is not canonical", s)
	}
	return E164(s), nil
}

// String returns the string form of the number.
func (e E164) String() string { return string(e) }

// DeviceID numbers the devices of one account. The primary is always 1.
type DeviceID uint32

// PrimaryDeviceID is the device id of the registering device.
const PrimaryDeviceID DeviceID = 1

// EphemeralDeviceID addresses a new device's provisioning mailbox.
type EphemeralDeviceID string

// String returns the string form of the identifier.
func (id EphemeralDeviceID) String() string { return string(id) }

// TokenID tracks an issued provisioning code for follow-up handshakes.
type TokenID string

// String returns the string form of the identifier.
func (id TokenID) String() string { return string(id) }

// ProvisioningCode is a single-use code issued by the coordination service.
type ProvisioningCode struct {
	VerificationCode string  `json:"verification_code"`
	TokenID          TokenID `json:"token_id"`
}

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// SignedPreKeyID uniquely identifies a signed pre-key.
type SignedPreKeyID string

// String returns the string form of the identifier.
func (id SignedPreKeyID) String() string { return string(id) }

// OneTimePreKeyID uniquely identifies a one-time pre-key.
type OneTimePreKeyID string

// String returns the string form of the identifier.
func (id OneTimePreKeyID) String() string { return string(id) }
