package provisioning_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlink/internal/domain"
	provproto "cipherlink/internal/protocol/provisioning"
	"cipherlink/internal/services/provisioning"
)

func decodeSent(t *testing.T, relay *fakePrimaryRelay, priv domain.X25519Private) domain.ProvisioningMessage {
	t.Helper()
	require.Len(t, relay.sent, 1)
	msg, err := provproto.Decode(relay.sent[0].body, priv)
	require.NoError(t, err)
	return msg
}

func TestProvision_SendsSealedAccountState(t *testing.T) {
	mrbk := domain.BackupKey{0x42}
	keys, acct := newPrimaryKeys(t, accountOptions{withPool: true, withMK: true, mrbk: &mrbk})
	relay := newFakePrimaryRelay()
	priv, url := newDevice(t)

	res, err := provisioning.NewManager(keys, relay).Provision(context.Background(), url, false)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenID("token-1"), res.TokenID)
	assert.Nil(t, res.EphemeralBackupKey)

	assert.Equal(t, url.EphemeralDeviceID, relay.sent[0].to)
	msg := decodeSent(t, relay, priv)
	assert.Equal(t, provproto.CurrentVersion, msg.Version)
	assert.Equal(t, acct.ids.PhoneNumber, msg.PhoneNumber)
	assert.Equal(t, acct.ids.ACI, msg.ACI)
	assert.Equal(t, acct.ids.PNI, msg.PNI)
	assert.Equal(t, acct.aci, msg.ACIIdentityKeyPair)
	assert.Equal(t, acct.pni, msg.PNIIdentityKeyPair)
	assert.Equal(t, acct.profileKey, msg.ProfileKey)
	assert.Equal(t, mrbk, msg.MediaRootBackupKey)
	assert.True(t, msg.ReadReceipts)
	assert.Equal(t, "123456", msg.ProvisioningCode)
	assert.Nil(t, msg.EphemeralBackupKey)
	assert.Nil(t, msg.PeerExtraPublicKey)
}

func TestProvision_RootKeyChoice(t *testing.T) {
	t.Run("entropy pool wins", func(t *testing.T) {
		keys, acct := newPrimaryKeys(t, accountOptions{withPool: true, withMK: true})
		relay := newFakePrimaryRelay()
		priv, url := newDevice(t)

		_, err := provisioning.NewManager(keys, relay).Provision(context.Background(), url, false)
		require.NoError(t, err)
		msg := decodeSent(t, relay, priv)
		assert.Equal(t, domain.EntropyPoolRootKey{Pool: acct.pool}, msg.RootKey)
	})
	t.Run("master key fallback", func(t *testing.T) {
		keys, acct := newPrimaryKeys(t, accountOptions{withMK: true})
		relay := newFakePrimaryRelay()
		priv, url := newDevice(t)

		_, err := provisioning.NewManager(keys, relay).Provision(context.Background(), url, false)
		require.NoError(t, err)
		msg := decodeSent(t, relay, priv)
		assert.Equal(t, domain.MasterKeyRootKey{Key: acct.masterKey}, msg.RootKey)
	})
}

func TestProvision_LinkAndSyncNeedsBothSides(t *testing.T) {
	tests := map[string]struct {
		should bool
		caps   []domain.Capability
		want   bool
	}{
		"requested and supported": {should: true, caps: []domain.Capability{domain.CapabilityLinkAndSync}, want: true},
		"requested only":          {should: true, want: false},
		"supported only":          {should: false, caps: []domain.Capability{domain.CapabilityLinkAndSync}, want: false},
		"neither":                 {should: false, want: false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			keys, _ := newPrimaryKeys(t, accountOptions{withPool: true})
			relay := newFakePrimaryRelay()
			priv, url := newDevice(t, tc.caps...)

			res, err := provisioning.NewManager(keys, relay).Provision(context.Background(), url, tc.should)
			require.NoError(t, err)
			msg := decodeSent(t, relay, priv)
			if !tc.want {
				assert.Nil(t, res.EphemeralBackupKey)
				assert.Nil(t, msg.EphemeralBackupKey)
				return
			}
			require.NotNil(t, res.EphemeralBackupKey)
			require.NotNil(t, msg.EphemeralBackupKey)
			assert.Equal(t, *res.EphemeralBackupKey, *msg.EphemeralBackupKey)
		})
	}
}

func TestProvision_CreatesMediaRootBackupKeyOnce(t *testing.T) {
	keys, _ := newPrimaryKeys(t, accountOptions{withPool: true})

	var sent []domain.BackupKey
	for i := 0; i < 2; i++ {
		relay := newFakePrimaryRelay()
		m := provisioning.NewManager(keys, relay,
			provisioning.WithBackupKeyGenerator(fixedBackupKeys(byte(0x10+i))))
		priv, url := newDevice(t)
		_, err := m.Provision(context.Background(), url, false)
		require.NoError(t, err)
		sent = append(sent, decodeSent(t, relay, priv).MediaRootBackupKey)
	}
	assert.Equal(t, domain.BackupKey{0x10}, sent[0])
	assert.Equal(t, sent[0], sent[1])

	require.NoError(t, keys.Read(func(tx domain.KeyStateReader) error {
		stored, ok := tx.MediaRootBackupKey()
		assert.True(t, ok)
		assert.Equal(t, domain.BackupKey{0x10}, stored)
		return nil
	}))
}

func TestProvision_MissingStateFailsBeforeNetwork(t *testing.T) {
	tests := map[string]accountOptions{
		"no root key":    {},
		"no profile key": {withPool: true, noProfileKey: true},
	}
	for name, o := range tests {
		t.Run(name, func(t *testing.T) {
			keys, _ := newPrimaryKeys(t, o)
			relay := newFakePrimaryRelay()
			_, url := newDevice(t)

			_, err := provisioning.NewManager(keys, relay).Provision(context.Background(), url, true)
			require.ErrorIs(t, err, domain.ErrFatalPrecondition)
			assert.Zero(t, relay.codeCalls)
			assert.Empty(t, relay.sent)
		})
	}

	t.Run("incomplete identifiers", func(t *testing.T) {
		keys, _ := newPrimaryKeys(t, accountOptions{withPool: true})
		require.NoError(t, keys.Write(func(tx domain.KeyStateWriter) error {
			tx.SetLocalIdentifiers(domain.LocalIdentifiers{ACI: domain.NewACI()})
			return nil
		}))
		relay := newFakePrimaryRelay()
		_, url := newDevice(t)

		_, err := provisioning.NewManager(keys, relay).Provision(context.Background(), url, false)
		require.ErrorIs(t, err, domain.ErrFatalPrecondition)
		assert.Zero(t, relay.codeCalls)
	})
}

func TestProvision_TransportErrorsPassThrough(t *testing.T) {
	boom := errors.Wrap(domain.ErrTransport, "relay down")

	t.Run("code request", func(t *testing.T) {
		keys, _ := newPrimaryKeys(t, accountOptions{withPool: true})
		relay := newFakePrimaryRelay()
		relay.codeErr = boom
		_, url := newDevice(t)

		_, err := provisioning.NewManager(keys, relay).Provision(context.Background(), url, false)
		require.ErrorIs(t, err, domain.ErrTransport)
		assert.Empty(t, relay.sent)
	})
	t.Run("submit", func(t *testing.T) {
		keys, _ := newPrimaryKeys(t, accountOptions{withPool: true})
		relay := newFakePrimaryRelay()
		relay.sendErr = boom
		_, url := newDevice(t)

		_, err := provisioning.NewManager(keys, relay).Provision(context.Background(), url, false)
		require.ErrorIs(t, err, domain.ErrTransport)
	})
}

func TestProvision_OneAtATime(t *testing.T) {
	keys, _ := newPrimaryKeys(t, accountOptions{withPool: true})
	relay := newFakePrimaryRelay()
	relay.entered = make(chan struct{})
	relay.release = make(chan struct{})
	m := provisioning.NewManager(keys, relay)
	_, url := newDevice(t)

	done := make(chan error, 1)
	go func() {
		_, err := m.Provision(context.Background(), url, false)
		done <- err
	}()
	<-relay.entered

	_, err := m.Provision(context.Background(), url, false)
	require.ErrorIs(t, err, provisioning.ErrInFlight)

	close(relay.release)
	require.NoError(t, <-done)
}

func TestProvision_AttachesPeerExtraPublicKey(t *testing.T) {
	keys, acct := newPrimaryKeys(t, accountOptions{withPool: true})
	relay := newFakePrimaryRelay()
	priv, url := newDevice(t)

	m := provisioning.NewManager(keys, relay, provisioning.WithPeerExtraPublicKey(true))
	_, err := m.Provision(context.Background(), url, false)
	require.NoError(t, err)

	want, err := provproto.DerivePeerExtraPublicKey(acct.aci.Private)
	require.NoError(t, err)
	msg := decodeSent(t, relay, priv)
	assert.Equal(t, want, msg.PeerExtraPublicKey)
}
