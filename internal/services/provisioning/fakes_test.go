package provisioning_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/store"
)

type sentMessage struct {
	to   domain.EphemeralDeviceID
	body []byte
}

// fakePrimaryRelay records what the initiator sends.
type fakePrimaryRelay struct {
	mu        sync.Mutex
	code      domain.ProvisioningCode
	codeErr   error
	sendErr   error
	codeCalls int
	sent      []sentMessage

	// When set, RequestProvisioningCode signals entered and waits on release.
	entered chan struct{}
	release chan struct{}
}

func newFakePrimaryRelay() *fakePrimaryRelay {
	return &fakePrimaryRelay{code: domain.ProvisioningCode{VerificationCode: "123456", TokenID: "token-1"}}
}

func (f *fakePrimaryRelay) RequestProvisioningCode(context.Context) (domain.ProvisioningCode, error) {
	if f.entered != nil {
		close(f.entered)
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codeCalls++
	return f.code, f.codeErr
}

func (f *fakePrimaryRelay) SendProvisioningMessage(_ context.Context, to domain.EphemeralDeviceID, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{to: to, body: body})
	return nil
}

// fakeDeviceRelay answers the new device's calls.
type fakeDeviceRelay struct {
	mu       sync.Mutex
	deviceID domain.DeviceID
	linkErr  error
	links    []domain.DeviceLinkRequest
}

func (f *fakeDeviceRelay) LinkDevice(_ context.Context, req domain.DeviceLinkRequest) (domain.DeviceLinkResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, req)
	if f.linkErr != nil {
		return domain.DeviceLinkResponse{}, f.linkErr
	}
	return domain.DeviceLinkResponse{ACI: req.ACI, PNI: req.PNI, DeviceID: f.deviceID}, nil
}

func (f *fakeDeviceRelay) UploadPreKeys(context.Context, domain.PreKeyBundle) error { return nil }

func (f *fakeDeviceRelay) OpenProvisioningChannel(context.Context) (domain.EphemeralDeviceID, error) {
	return "", errors.New("not used")
}

func (f *fakeDeviceRelay) WaitForProvisioningMessage(context.Context, domain.EphemeralDeviceID) ([]byte, error) {
	return nil, errors.New("not used")
}

type fakePreKeys struct {
	calls int
	err   error
}

func (f *fakePreKeys) FinalizeRegistrationPreKeys(context.Context) error {
	f.calls++
	return f.err
}

// primaryAccount is the key state of a registered primary.
type primaryAccount struct {
	ids        domain.LocalIdentifiers
	aci, pni   domain.IdentityKeyPair
	pool       domain.AccountEntropyPool
	masterKey  domain.MasterKey
	profileKey domain.ProfileKey
}

type accountOptions struct {
	withPool     bool
	withMK       bool
	noProfileKey bool
	mrbk         *domain.BackupKey
}

func newPrimaryKeys(t *testing.T, o accountOptions) (*store.KeyStateStore, primaryAccount) {
	t.Helper()
	var (
		acct primaryAccount
		err  error
	)
	acct.ids = domain.LocalIdentifiers{ACI: domain.NewACI(), PNI: domain.NewPNI(), PhoneNumber: "+17875550100"}
	acct.aci, err = crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	acct.pni, err = crypto.GenerateIdentityKeyPair()
	require.NoError(t, err)
	acct.pool, err = domain.NewAccountEntropyPool()
	require.NoError(t, err)
	acct.masterKey = domain.MasterKey{0x4d}
	acct.profileKey = domain.ProfileKey{0x50}

	keys := store.NewKeyStateMemoryStore()
	require.NoError(t, keys.Write(func(tx domain.KeyStateWriter) error {
		tx.SetLocalIdentifiers(acct.ids)
		tx.SetIdentityKeyPair(domain.RoleACI, acct.aci)
		tx.SetIdentityKeyPair(domain.RolePNI, acct.pni)
		if o.withPool {
			tx.SetAccountEntropyPool(acct.pool)
		}
		if o.withMK {
			tx.SetMasterKey(acct.masterKey)
		}
		if !o.noProfileKey {
			tx.SetProfileKey(acct.profileKey)
		}
		if o.mrbk != nil {
			tx.SetMediaRootBackupKey(*o.mrbk)
		}
		tx.SetReadReceipts(true)
		return nil
	}))
	return keys, acct
}

// newDevice returns an ephemeral key pair and the link URL advertising caps.
func newDevice(t *testing.T, caps ...domain.Capability) (domain.X25519Private, domain.ProvisioningURL) {
	t.Helper()
	priv, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	return priv, domain.ProvisioningURL{EphemeralDeviceID: "mailbox-1", PublicKey: pub, Capabilities: caps}
}

func openRecords(t *testing.T) *store.AccountRecordDB {
	t.Helper()
	db, err := store.OpenAccountRecordDB("sqlite://" + filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func fixedBackupKeys(first byte) func() (domain.BackupKey, error) {
	var (
		mu   sync.Mutex
		next = first
	)
	return func() (domain.BackupKey, error) {
		mu.Lock()
		defer mu.Unlock()
		k := domain.BackupKey{next}
		next++
		return k, nil
	}
}
