package provisioning_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/protocol/provisioning"
)

func sampleMessage(t *testing.T) domain.ProvisioningMessage {
	t.Helper()
	aci, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	pni, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	pool, err := domain.NewAccountEntropyPool()
	require.NoError(t, err)

	return domain.ProvisioningMessage{
		Version:            provisioning.CurrentVersion,
		PhoneNumber:        "+17875550100",
		ACI:                domain.NewACI(),
		PNI:                domain.NewPNI(),
		RootKey:            domain.EntropyPoolRootKey{Pool: pool},
		ACIIdentityKeyPair: aci,
		PNIIdentityKeyPair: pni,
		ProfileKey:         domain.ProfileKey{1, 2, 3},
		MediaRootBackupKey: domain.BackupKey{4, 5, 6},
		ReadReceipts:       true,
		ProvisioningCode:   "123456",
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	msg := sampleMessage(t)
	ebk := domain.BackupKey{9, 9, 9}
	msg.EphemeralBackupKey = &ebk
	msg.PeerExtraPublicKey = []byte{0xde, 0xad}

	b, err := provisioning.Marshal(msg)
	require.NoError(t, err)
	got, err := provisioning.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestMarshal_RoundTrip_LegacyMasterKeyAndAbsentOptionals(t *testing.T) {
	msg := sampleMessage(t)
	msg.RootKey = domain.MasterKeyRootKey{Key: domain.MasterKey{0x11}}
	msg.ReadReceipts = false

	b, err := provisioning.Marshal(msg)
	require.NoError(t, err)
	got, err := provisioning.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
	assert.Nil(t, got.EphemeralBackupKey)
	assert.Nil(t, got.PeerExtraPublicKey)
}

func TestMarshal_PeerExtraKeyPresence(t *testing.T) {
	msg := sampleMessage(t)
	msg.PeerExtraPublicKey = []byte{}

	b, err := provisioning.Marshal(msg)
	require.NoError(t, err)
	got, err := provisioning.Unmarshal(b)
	require.NoError(t, err)
	require.NotNil(t, got.PeerExtraPublicKey)
	assert.Empty(t, got.PeerExtraPublicKey)
}

func TestMarshal_RejectsInvalid(t *testing.T) {
	cases := map[string]func(m *domain.ProvisioningMessage){
		"bad phone":      func(m *domain.ProvisioningMessage) { m.PhoneNumber = "555" },
		"zero aci":       func(m *domain.ProvisioningMessage) { m.ACI = domain.ACI{} },
		"zero pni":       func(m *domain.ProvisioningMessage) { m.PNI = domain.PNI{} },
		"no root key":    func(m *domain.ProvisioningMessage) { m.RootKey = nil },
		"bad pool":       func(m *domain.ProvisioningMessage) { m.RootKey = domain.EntropyPoolRootKey{Pool: "x"} },
		"mismatched aci": func(m *domain.ProvisioningMessage) { m.ACIIdentityKeyPair.Public[0] ^= 1 },
		"mismatched pni": func(m *domain.ProvisioningMessage) { m.PNIIdentityKeyPair.Private[5] ^= 1 },
		"no profile key": func(m *domain.ProvisioningMessage) { m.ProfileKey = domain.ProfileKey{} },
		"no mrbk":        func(m *domain.ProvisioningMessage) { m.MediaRootBackupKey = domain.BackupKey{} },
		"no code":        func(m *domain.ProvisioningMessage) { m.ProvisioningCode = "" },
		"zero version":   func(m *domain.ProvisioningMessage) { m.Version = 0 },
		"future version": func(m *domain.ProvisioningMessage) { m.Version = provisioning.CurrentVersion + 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			msg := sampleMessage(t)
			mutate(&msg)
			_, err := provisioning.Marshal(msg)
			require.ErrorIs(t, err, provisioning.ErrEncoding)
		})
	}
}

func TestUnmarshal_VersionRejected(t *testing.T) {
	b, err := provisioning.Marshal(sampleMessage(t))
	require.NoError(t, err)
	require.Equal(t, byte(0x08), b[0], "version must be the first field")

	for _, v := range []byte{0x00, 0x02, 0x7f} {
		mutated := append([]byte{}, b...)
		mutated[1] = v
		_, err := provisioning.Unmarshal(mutated)
		require.ErrorIs(t, err, provisioning.ErrUnsupportedVersion)
		require.ErrorIs(t, err, provisioning.ErrMalformedMessage)
	}
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	msg := sampleMessage(t)
	b, err := provisioning.Marshal(msg)
	require.NoError(t, err)

	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("from the future"))
	b = protowire.AppendTag(b, 100, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)

	got, err := provisioning.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestUnmarshal_RejectsMalformed(t *testing.T) {
	msg := sampleMessage(t)
	b, err := provisioning.Marshal(msg)
	require.NoError(t, err)

	withField := func(num protowire.Number, v []byte) []byte {
		out := append([]byte{}, b...)
		out = protowire.AppendTag(out, num, protowire.BytesType)
		return protowire.AppendBytes(out, v)
	}

	cases := map[string][]byte{
		"empty":            {},
		"truncated":        b[:len(b)-3],
		"garbage":          []byte(strings.Repeat("\xff", 40)),
		"repeated field":   withField(15, []byte("654321")),
		"both root keys":   withField(10, make([]byte, 32)),
		"short profile":    replaceField(t, b, 9, []byte{1, 2}),
		"wrong wire type":  replaceVarint(t, b, 9, 1),
		"missing code":     dropField(t, b, 15),
		"missing root key": dropField(t, b, 11),
		"bad aci":          replaceField(t, b, 2, []byte("not-a-uuid")),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := provisioning.Unmarshal(in)
			require.ErrorIs(t, err, provisioning.ErrMalformedMessage)
		})
	}
}

// rebuild re-encodes b field by field, letting edit replace or drop fields.
func rebuild(t *testing.T, b []byte, edit func(num protowire.Number, typ protowire.Type, raw []byte) []byte) []byte {
	t.Helper()
	var out []byte
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		require.GreaterOrEqual(t, n, 0)
		m := protowire.ConsumeFieldValue(num, typ, b[n:])
		require.GreaterOrEqual(t, m, 0)
		out = append(out, edit(num, typ, b[:n+m])...)
		b = b[n+m:]
	}
	return out
}

func dropField(t *testing.T, b []byte, field protowire.Number) []byte {
	return rebuild(t, b, func(num protowire.Number, _ protowire.Type, raw []byte) []byte {
		if num == field {
			return nil
		}
		return raw
	})
}

func replaceField(t *testing.T, b []byte, field protowire.Number, v []byte) []byte {
	return rebuild(t, b, func(num protowire.Number, _ protowire.Type, raw []byte) []byte {
		if num != field {
			return raw
		}
		out := protowire.AppendTag(nil, num, protowire.BytesType)
		return protowire.AppendBytes(out, v)
	})
}

func replaceVarint(t *testing.T, b []byte, field protowire.Number, v uint64) []byte {
	return rebuild(t, b, func(num protowire.Number, _ protowire.Type, raw []byte) []byte {
		if num != field {
			return raw
		}
		out := protowire.AppendTag(nil, num, protowire.VarintType)
		return protowire.AppendVarint(out, v)
	})
}
