package provisioning

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"cipherlink/internal/domain"
	domaintypes "cipherlink/internal/domain/types"
)

// CurrentVersion is the newest message version this package reads and writes.
const CurrentVersion uint32 = 1

// Wire field numbers. They never change meaning; new fields get new numbers.
const (
	fieldVersion            protowire.Number = 1
	fieldACI                protowire.Number = 2
	fieldPNI                protowire.Number = 3
	fieldNumber             protowire.Number = 4
	fieldACIIdentityPublic  protowire.Number = 5
	fieldACIIdentityPrivate protowire.Number = 6
	fieldPNIIdentityPublic  protowire.Number = 7
	fieldPNIIdentityPrivate protowire.Number = 8
	fieldProfileKey         protowire.Number = 9
	fieldMasterKey          protowire.Number = 10
	fieldAccountEntropyPool protowire.Number = 11
	fieldMediaRootBackupKey protowire.Number = 12
	fieldEphemeralBackupKey protowire.Number = 13
	fieldReadReceipts       protowire.Number = 14
	fieldProvisioningCode   protowire.Number = 15
	fieldPeerExtraPublicKey protowire.Number = 16

	maxField = fieldPeerExtraPublicKey
)

// requiredFields must all be present. The root key is checked separately
// because exactly one of its two fields may appear.
var requiredFields = []protowire.Number{
	fieldVersion,
	fieldACI,
	fieldPNI,
	fieldNumber,
	fieldACIIdentityPublic,
	fieldACIIdentityPrivate,
	fieldPNIIdentityPublic,
	fieldPNIIdentityPrivate,
	fieldProfileKey,
	fieldMediaRootBackupKey,
	fieldProvisioningCode,
}

// Marshal serializes msg. Optional fields are left off the wire when absent;
// a present but empty peer extra public key is written as a zero-length field.
// msg.Version must be between 1 and CurrentVersion.
func Marshal(msg domain.ProvisioningMessage) ([]byte, error) {
	version := msg.Version
	if version == 0 || version > CurrentVersion {
		return nil, errors.Wrapf(ErrEncoding, "version %d outside 1..%d", version, CurrentVersion)
	}
	if err := msg.Validate(); err != nil {
		return nil, errors.Wrap(ErrEncoding, err.Error())
	}

	b := make([]byte, 0, 512)
	b = appendVarint(b, fieldVersion, uint64(version))
	b = appendString(b, fieldACI, msg.ACI.String())
	b = appendString(b, fieldPNI, msg.PNI.RawUUID())
	b = appendString(b, fieldNumber, msg.PhoneNumber.String())
	b = appendBytes(b, fieldACIIdentityPublic, msg.ACIIdentityKeyPair.Public.Slice())
	b = appendBytes(b, fieldACIIdentityPrivate, msg.ACIIdentityKeyPair.Private.Slice())
	b = appendBytes(b, fieldPNIIdentityPublic, msg.PNIIdentityKeyPair.Public.Slice())
	b = appendBytes(b, fieldPNIIdentityPrivate, msg.PNIIdentityKeyPair.Private.Slice())
	b = appendBytes(b, fieldProfileKey, msg.ProfileKey.Slice())

	switch rk := msg.RootKey.(type) {
	case domain.EntropyPoolRootKey:
		b = appendString(b, fieldAccountEntropyPool, rk.Pool.String())
	case domain.MasterKeyRootKey:
		b = appendBytes(b, fieldMasterKey, rk.Key.Slice())
	default:
		return nil, errors.Wrapf(ErrEncoding, "unsupported root key %T", msg.RootKey)
	}

	b = appendBytes(b, fieldMediaRootBackupKey, msg.MediaRootBackupKey.Slice())
	if msg.EphemeralBackupKey != nil {
		b = appendBytes(b, fieldEphemeralBackupKey, msg.EphemeralBackupKey.Slice())
	}
	b = appendVarint(b, fieldReadReceipts, protowire.EncodeBool(msg.ReadReceipts))
	b = appendString(b, fieldProvisioningCode, msg.ProvisioningCode)
	if msg.PeerExtraPublicKey != nil {
		b = appendBytes(b, fieldPeerExtraPublicKey, msg.PeerExtraPublicKey)
	}
	return b, nil
}

// Unmarshal parses a serialized message. Unknown fields are skipped;
// duplicated known fields, missing required fields, wrong lengths and
// versions newer than CurrentVersion are rejected.
func Unmarshal(b []byte) (domain.ProvisioningMessage, error) {
	var (
		msg       domain.ProvisioningMessage
		seen      [maxField + 1]bool
		pool      *domain.AccountEntropyPool
		masterKey *domain.MasterKey
	)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return domain.ProvisioningMessage{}, malformed(protowire.ParseError(n).Error())
		}
		b = b[n:]

		if num > maxField {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return domain.ProvisioningMessage{}, malformed(protowire.ParseError(n).Error())
			}
			b = b[n:]
			continue
		}
		if seen[num] {
			return domain.ProvisioningMessage{}, malformed("field %d repeated", num)
		}
		seen[num] = true

		if num == fieldVersion || num == fieldReadReceipts {
			v, err := consumeVarint(num, typ, &b)
			if err != nil {
				return domain.ProvisioningMessage{}, err
			}
			if num == fieldReadReceipts {
				msg.ReadReceipts = protowire.DecodeBool(v)
				continue
			}
			if v == 0 || v > uint64(CurrentVersion) {
				return domain.ProvisioningMessage{}, errors.Wrapf(ErrUnsupportedVersion, "version %d", v)
			}
			msg.Version = uint32(v)
			continue
		}

		v, err := consumeBytes(num, typ, &b)
		if err != nil {
			return domain.ProvisioningMessage{}, err
		}
		switch num {
		case fieldACI:
			if msg.ACI, err = domaintypes.ParseACI(string(v)); err != nil {
				return domain.ProvisioningMessage{}, malformed("%v", err)
			}
		case fieldPNI:
			if msg.PNI, err = domaintypes.ParsePNI(string(v)); err != nil {
				return domain.ProvisioningMessage{}, malformed("%v", err)
			}
		case fieldNumber:
			if msg.PhoneNumber, err = domaintypes.ParseE164(string(v)); err != nil {
				return domain.ProvisioningMessage{}, malformed("%v", err)
			}
		case fieldACIIdentityPublic:
			err = copyKey(num, msg.ACIIdentityKeyPair.Public[:], v)
		case fieldACIIdentityPrivate:
			err = copyKey(num, msg.ACIIdentityKeyPair.Private[:], v)
		case fieldPNIIdentityPublic:
			err = copyKey(num, msg.PNIIdentityKeyPair.Public[:], v)
		case fieldPNIIdentityPrivate:
			err = copyKey(num, msg.PNIIdentityKeyPair.Private[:], v)
		case fieldProfileKey:
			err = copyKey(num, msg.ProfileKey[:], v)
		case fieldMasterKey:
			masterKey = new(domain.MasterKey)
			err = copyKey(num, masterKey[:], v)
		case fieldAccountEntropyPool:
			p, perr := domaintypes.ParseAccountEntropyPool(string(v))
			if perr != nil {
				return domain.ProvisioningMessage{}, malformed("%v", perr)
			}
			pool = &p
		case fieldMediaRootBackupKey:
			err = copyKey(num, msg.MediaRootBackupKey[:], v)
		case fieldEphemeralBackupKey:
			msg.EphemeralBackupKey = new(domain.BackupKey)
			err = copyKey(num, msg.EphemeralBackupKey[:], v)
		case fieldProvisioningCode:
			msg.ProvisioningCode = string(v)
		case fieldPeerExtraPublicKey:
			msg.PeerExtraPublicKey = append([]byte{}, v...)
		}
		if err != nil {
			return domain.ProvisioningMessage{}, err
		}
	}

	for _, f := range requiredFields {
		if !seen[f] {
			return domain.ProvisioningMessage{}, malformed("required field %d missing", f)
		}
	}
	switch {
	case pool != nil && masterKey != nil:
		return domain.ProvisioningMessage{}, malformed("both root key forms present")
	case pool != nil:
		msg.RootKey = domain.EntropyPoolRootKey{Pool: *pool}
	case masterKey != nil:
		msg.RootKey = domain.MasterKeyRootKey{Key: *masterKey}
	default:
		return domain.ProvisioningMessage{}, malformed("root key missing")
	}

	if err := msg.Validate(); err != nil {
		return domain.ProvisioningMessage{}, malformed("%v", err)
	}
	return msg, nil
}

func malformed(format string, args ...any) error {
	return errors.Wrapf(ErrMalformedMessage, format, args...)
}

func consumeVarint(num protowire.Number, typ protowire.Type, b *[]byte) (uint64, error) {
	if typ != protowire.VarintType {
		return 0, malformed("field %d: want varint, got wire type %d", num, typ)
	}
	v, n := protowire.ConsumeVarint(*b)
	if n < 0 {
		return 0, malformed("field %d: %v", num, protowire.ParseError(n))
	}
	*b = (*b)[n:]
	return v, nil
}

func consumeBytes(num protowire.Number, typ protowire.Type, b *[]byte) ([]byte, error) {
	if typ != protowire.BytesType {
		return nil, malformed("field %d: want bytes, got wire type %d", num, typ)
	}
	v, n := protowire.ConsumeBytes(*b)
	if n < 0 {
		return nil, malformed("field %d: %v", num, protowire.ParseError(n))
	}
	*b = (*b)[n:]
	return v, nil
}

func copyKey(num protowire.Number, dst, src []byte) error {
	if len(src) != len(dst) {
		return malformed("field %d: want %d bytes, got %d", num, len(dst), len(src))
	}
	copy(dst, src)
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}
