package provisioning_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	provproto "cipherlink/internal/protocol/provisioning"
	"cipherlink/internal/services/provisioning"
	"cipherlink/internal/services/registration"
	"cipherlink/internal/store"
)

var linkTime = time.UnixMilli(1_700_000_000_000)

type newDeviceEnv struct {
	keys    *store.KeyStateStore
	records *store.AccountRecordDB
	relay   *fakeDeviceRelay
	prekeys *fakePreKeys
	coord   *provisioning.Coordinator
}

func newNewDeviceEnv(t *testing.T) *newDeviceEnv {
	t.Helper()
	env := &newDeviceEnv{
		keys:    store.NewKeyStateMemoryStore(),
		records: openRecords(t),
		relay:   &fakeDeviceRelay{deviceID: 2},
		prekeys: &fakePreKeys{},
	}
	env.coord = provisioning.NewCoordinator(
		env.keys,
		env.records,
		env.relay,
		registration.New(env.keys),
		env.prekeys,
		provisioning.WithClock(func() time.Time { return linkTime }),
	)
	return env
}

func incomingMessage(t *testing.T) domain.ProvisioningMessage {
	t.Helper()
	aci, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	pni, err := crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	pool, err := domain.NewAccountEntropyPool()
	require.NoError(t, err)
	rk, err := domain.NewEntropyPoolRootKey(pool)
	require.NoError(t, err)
	peer, err := provproto.DerivePeerExtraPublicKey(aci.Private)
	require.NoError(t, err)

	return domain.ProvisioningMessage{
		Version:            provproto.CurrentVersion,
		PhoneNumber:        "+17875550100",
		ACI:                domain.NewACI(),
		PNI:                domain.NewPNI(),
		RootKey:            rk,
		ACIIdentityKeyPair: aci,
		PNIIdentityKeyPair: pni,
		ProfileKey:         domain.ProfileKey{0x50},
		MediaRootBackupKey: domain.BackupKey{0x42},
		ReadReceipts:       true,
		ProvisioningCode:   "123456",
		PeerExtraPublicKey: peer,
	}
}

func (env *newDeviceEnv) assertNothingInstalled(t *testing.T, msg domain.ProvisioningMessage) {
	t.Helper()
	require.NoError(t, env.keys.Read(func(tx domain.KeyStateReader) error {
		for _, role := range domain.IdentityRoles {
			_, ok := tx.IdentityKeyPair(role)
			assert.False(t, ok, role)
		}
		_, ok := tx.MasterKey()
		assert.False(t, ok)
		_, ok = tx.RegistrationState()
		assert.False(t, ok)
		return nil
	}))
	_, ok, err := env.records.GetAccountRecord(context.Background(), msg.ACI.ServiceID())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, env.prekeys.calls)
}

func TestCompleteProvisioning_InstallsAccount(t *testing.T) {
	env := newNewDeviceEnv(t)
	msg := incomingMessage(t)

	state, err := env.coord.CompleteProvisioning(context.Background(), msg, "tablet")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceID(2), state.DeviceID)
	assert.Equal(t, "tablet", state.DeviceName)
	assert.False(t, state.IsPrimary)

	require.Len(t, env.relay.links, 1)
	assert.Equal(t, domain.DeviceLinkRequest{
		VerificationCode: "123456",
		ACI:              msg.ACI,
		PNI:              msg.PNI,
		DeviceName:       "tablet",
	}, env.relay.links[0])
	assert.Equal(t, 1, env.prekeys.calls)

	require.NoError(t, env.keys.Read(func(tx domain.KeyStateReader) error {
		for _, role := range domain.IdentityRoles {
			kp, ok := tx.IdentityKeyPair(role)
			assert.True(t, ok, role)
			assert.Equal(t, msg.IdentityKeyPair(role), kp, role)
		}
		ids, _ := tx.LocalIdentifiers()
		assert.Equal(t, domain.LocalIdentifiers{ACI: msg.ACI, PNI: msg.PNI, PhoneNumber: "+17875550100"}, ids)
		pk, _ := tx.ProfileKey()
		assert.Equal(t, msg.ProfileKey, pk)
		mrbk, _ := tx.MediaRootBackupKey()
		assert.Equal(t, msg.MediaRootBackupKey, mrbk)
		assert.True(t, tx.ReadReceipts())
		mk, ok := tx.MasterKey()
		assert.True(t, ok)
		assert.Equal(t, msg.RootKey.DeriveMasterKey(), mk)
		pool, ok := tx.AccountEntropyPool()
		assert.True(t, ok)
		assert.Equal(t, msg.RootKey.(domain.EntropyPoolRootKey).Pool, pool)
		return nil
	}))

	rec, ok, err := env.records.GetAccountRecord(context.Background(), msg.ACI.ServiceID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.E164("+17875550100"), rec.RecipientPhoneNumber)
	assert.Equal(t, msg.PeerExtraPublicKey, rec.PeerExtraPublicKey)
	require.NotNil(t, rec.PeerExtraPublicKeyTimestamp)
	assert.Equal(t, linkTime.UnixMilli(), *rec.PeerExtraPublicKeyTimestamp)
}

func TestCompleteProvisioning_MasterKeyRootKey(t *testing.T) {
	env := newNewDeviceEnv(t)
	msg := incomingMessage(t)
	msg.RootKey = domain.NewMasterKeyRootKey(domain.MasterKey{0x4d})

	_, err := env.coord.CompleteProvisioning(context.Background(), msg, "tablet")
	require.NoError(t, err)

	require.NoError(t, env.keys.Read(func(tx domain.KeyStateReader) error {
		mk, _ := tx.MasterKey()
		assert.Equal(t, domain.MasterKey{0x4d}, mk)
		_, ok := tx.AccountEntropyPool()
		assert.False(t, ok)
		return nil
	}))
}

func TestCompleteProvisioning_MasterKeyClearsStalePool(t *testing.T) {
	env := newNewDeviceEnv(t)
	stale, err := domain.NewAccountEntropyPool()
	require.NoError(t, err)
	require.NoError(t, env.keys.Write(func(tx domain.KeyStateWriter) error {
		tx.SetAccountEntropyPool(stale)
		tx.SetMasterKey(stale.MasterKey())
		return nil
	}))

	msg := incomingMessage(t)
	msg.RootKey = domain.NewMasterKeyRootKey(domain.MasterKey{0x4d})

	_, err = env.coord.CompleteProvisioning(context.Background(), msg, "tablet")
	require.NoError(t, err)

	require.NoError(t, env.keys.Read(func(tx domain.KeyStateReader) error {
		mk, _ := tx.MasterKey()
		assert.Equal(t, domain.MasterKey{0x4d}, mk)
		_, ok := tx.AccountEntropyPool()
		assert.False(t, ok)
		return nil
	}))
}

func TestCompleteProvisioning_RandomRootKeys(t *testing.T) {
	tests := map[string]func(t *testing.T) domain.RootKey{
		"entropy pool": func(t *testing.T) domain.RootKey {
			pool, err := domain.NewAccountEntropyPool()
			require.NoError(t, err)
			rk, err := domain.NewEntropyPoolRootKey(pool)
			require.NoError(t, err)
			return rk
		},
		"master key": func(t *testing.T) domain.RootKey {
			raw, err := crypto.Random32()
			require.NoError(t, err)
			return domain.NewMasterKeyRootKey(domain.MasterKey(raw))
		},
	}
	for name, newRootKey := range tests {
		t.Run(name, func(t *testing.T) {
			env := newNewDeviceEnv(t)
			msg := incomingMessage(t)
			msg.RootKey = newRootKey(t)
			want := msg.RootKey.DeriveMasterKey()

			_, err := env.coord.CompleteProvisioning(context.Background(), msg, "tablet")
			require.NoError(t, err)

			require.NoError(t, env.keys.Read(func(tx domain.KeyStateReader) error {
				mk, ok := tx.MasterKey()
				assert.True(t, ok)
				assert.Equal(t, want, mk)
				pool, ok := tx.AccountEntropyPool()
				if rk, isPool := msg.RootKey.(domain.EntropyPoolRootKey); isPool {
					assert.True(t, ok)
					assert.Equal(t, rk.Pool, pool)
					assert.Equal(t, mk, pool.MasterKey())
				} else {
					assert.False(t, ok)
				}
				return nil
			}))
		})
	}
}

func TestCompleteProvisioning_KeepsOtherRecordFields(t *testing.T) {
	ctx := context.Background()
	env := newNewDeviceEnv(t)
	msg := incomingMessage(t)

	existing := domain.AccountRecord{
		RecipientServiceID:   msg.ACI.ServiceID(),
		RecipientPhoneNumber: "+17875550199",
		GivenName:            "Grace",
		Nickname:             "gh",
		ContactAvatarHash:    []byte{0xaa},
	}
	require.NoError(t, env.records.SaveAccountRecord(ctx, &existing))

	_, err := env.coord.CompleteProvisioning(ctx, msg, "tablet")
	require.NoError(t, err)

	rec, _, err := env.records.GetAccountRecord(ctx, msg.ACI.ServiceID())
	require.NoError(t, err)
	assert.Equal(t, existing.ID, rec.ID)
	assert.Equal(t, existing.UniqueID, rec.UniqueID)
	assert.Equal(t, existing.RecordVersion+1, rec.RecordVersion)
	assert.Equal(t, domain.E164("+17875550199"), rec.RecipientPhoneNumber)
	assert.Equal(t, "Grace", rec.GivenName)
	assert.Equal(t, "gh", rec.Nickname)
	assert.Equal(t, []byte{0xaa}, rec.ContactAvatarHash)
	assert.Equal(t, msg.PeerExtraPublicKey, rec.PeerExtraPublicKey)
}

func TestCompleteProvisioning_AbsentPeerKeyKeepsStoredOne(t *testing.T) {
	tests := map[string][]byte{
		"nil":   nil,
		"empty": {},
	}
	for name, incoming := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			env := newNewDeviceEnv(t)
			msg := incomingMessage(t)
			msg.PeerExtraPublicKey = incoming

			existing := domain.AccountRecord{RecipientServiceID: msg.ACI.ServiceID()}
			require.NoError(t, existing.SetPeerExtraPublicKey([]byte{1, 2, 3}, 5))
			require.NoError(t, env.records.SaveAccountRecord(ctx, &existing))

			_, err := env.coord.CompleteProvisioning(ctx, msg, "tablet")
			require.NoError(t, err)

			rec, _, err := env.records.GetAccountRecord(ctx, msg.ACI.ServiceID())
			require.NoError(t, err)
			assert.Equal(t, existing.RecordVersion, rec.RecordVersion)
			assert.Equal(t, []byte{1, 2, 3}, rec.PeerExtraPublicKey)
			require.NotNil(t, rec.PeerExtraPublicKeyTimestamp)
			assert.Equal(t, int64(5), *rec.PeerExtraPublicKeyTimestamp)
		})
	}
}

func TestCompleteProvisioning_AbsentPeerKeyCreatesNoRecord(t *testing.T) {
	ctx := context.Background()
	env := newNewDeviceEnv(t)
	msg := incomingMessage(t)
	msg.PeerExtraPublicKey = nil

	_, err := env.coord.CompleteProvisioning(ctx, msg, "tablet")
	require.NoError(t, err)

	_, ok, err := env.records.GetAccountRecord(ctx, msg.ACI.ServiceID())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompleteProvisioning_MalformedTouchesNothing(t *testing.T) {
	tests := map[string]func(*domain.ProvisioningMessage){
		"no code":         func(m *domain.ProvisioningMessage) { m.ProvisioningCode = "" },
		"no aci":          func(m *domain.ProvisioningMessage) { m.ACI = domain.ACI{} },
		"bad number":      func(m *domain.ProvisioningMessage) { m.PhoneNumber = "7875550100" },
		"no root key":     func(m *domain.ProvisioningMessage) { m.RootKey = nil },
		"mismatched pair": func(m *domain.ProvisioningMessage) { m.PNIIdentityKeyPair.Public = m.ACIIdentityKeyPair.Public },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			env := newNewDeviceEnv(t)
			msg := incomingMessage(t)
			mutate(&msg)

			_, err := env.coord.CompleteProvisioning(context.Background(), msg, "tablet")
			require.ErrorIs(t, err, provproto.ErrMalformedMessage)
			assert.Empty(t, env.relay.links)
			env.assertNothingInstalled(t, msg)
		})
	}
}

func TestCompleteProvisioning_LinkFailurePersistsNothing(t *testing.T) {
	env := newNewDeviceEnv(t)
	env.relay.linkErr = errors.Wrap(domain.ErrTransport, "403 Forbidden")
	msg := incomingMessage(t)

	_, err := env.coord.CompleteProvisioning(context.Background(), msg, "tablet")
	require.ErrorIs(t, err, domain.ErrTransport)
	assert.NotErrorIs(t, err, provisioning.ErrFinalization)
	env.assertNothingInstalled(t, msg)
}

func TestCompleteProvisioning_FinalizationFailure(t *testing.T) {
	env := newNewDeviceEnv(t)
	env.prekeys.err = errors.Wrap(domain.ErrTransport, "upload failed")
	msg := incomingMessage(t)

	_, err := env.coord.CompleteProvisioning(context.Background(), msg, "tablet")
	require.ErrorIs(t, err, provisioning.ErrFinalization)
	require.ErrorIs(t, err, domain.ErrTransport)
	var fe *provisioning.FinalizationError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "pre-keys", fe.Step)

	// Key material stays installed.
	require.NoError(t, env.keys.Read(func(tx domain.KeyStateReader) error {
		_, ok := tx.IdentityKeyPair(domain.RoleACI)
		assert.True(t, ok)
		return nil
	}))
}

func TestCompleteProvisioning_RegistrationFailure(t *testing.T) {
	env := newNewDeviceEnv(t)
	env.relay.deviceID = domain.PrimaryDeviceID
	msg := incomingMessage(t)

	_, err := env.coord.CompleteProvisioning(context.Background(), msg, "tablet")
	require.ErrorIs(t, err, provisioning.ErrFinalization)
	require.ErrorIs(t, err, registration.ErrNotSecondaryDevice)
	var fe *provisioning.FinalizationError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "registration", fe.Step)
	assert.Zero(t, env.prekeys.calls)
}

type failingRecords struct {
	*store.AccountRecordDB
	err error
}

func (f failingRecords) UpdateAccountRecord(
	context.Context,
	domain.ServiceID,
	func(*domain.AccountRecord) bool,
) (domain.AccountRecord, error) {
	return domain.AccountRecord{}, f.err
}

func TestCompleteProvisioning_PeerKeyFailureIsFinalization(t *testing.T) {
	env := newNewDeviceEnv(t)
	coord := provisioning.NewCoordinator(
		env.keys,
		failingRecords{AccountRecordDB: env.records, err: domain.ErrPersistenceConflict},
		env.relay,
		registration.New(env.keys),
		env.prekeys,
		provisioning.WithClock(func() time.Time { return linkTime }),
	)
	msg := incomingMessage(t)

	_, err := coord.CompleteProvisioning(context.Background(), msg, "tablet")
	require.ErrorIs(t, err, provisioning.ErrFinalization)
	require.ErrorIs(t, err, domain.ErrPersistenceConflict)
	var fe *provisioning.FinalizationError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "peer extra key", fe.Step)
	assert.Zero(t, env.prekeys.calls)
}
