package provisioning

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	provproto "cipherlink/internal/protocol/provisioning"
)

// Manager hands the account's key material to a new device.
type Manager struct {
	keys  domain.KeyStateStore
	relay domain.ProvisioningService

	attachPeerExtraKey bool
	newBackupKey       func() (domain.BackupKey, error)

	inFlight sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithPeerExtraPublicKey makes Provision attach this account's peer extra
// public key to every message.
func WithPeerExtraPublicKey(enabled bool) ManagerOption {
	return func(m *Manager) { m.attachPeerExtraKey = enabled }
}

// WithBackupKeyGenerator replaces the random source for the ephemeral and
// media root backup keys.
func WithBackupKeyGenerator(fn func() (domain.BackupKey, error)) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.newBackupKey = fn
		}
	}
}

// NewManager returns a Manager reading key state from keys and talking to
// the coordination service through relay.
func NewManager(
	keys domain.KeyStateStore,
	relay domain.ProvisioningService,
	opts ...ManagerOption,
) *Manager {
	m := &Manager{
		keys:         keys,
		relay:        relay,
		newBackupKey: randomBackupKey,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// accountSnapshot is the key material read in one transaction.
type accountSnapshot struct {
	ids          domain.LocalIdentifiers
	aci          domain.IdentityKeyPair
	pni          domain.IdentityKeyPair
	rootKey      domain.RootKey
	profileKey   domain.ProfileKey
	mrbk         domain.BackupKey
	readReceipts bool
}

// Provision seals the account's key material to the device behind url and
// submits it to the device's mailbox.
//
// An ephemeral backup key is generated only when shouldLinkAndSync is set
// and the device advertises link-and-sync. Missing local state fails with
// domain.ErrFatalPrecondition before any network call. Errors from the
// coordination service are returned as they are.
func (m *Manager) Provision(
	ctx context.Context,
	url domain.ProvisioningURL,
	shouldLinkAndSync bool,
) (domain.ProvisioningResult, error) {
	if !m.inFlight.TryLock() {
		return domain.ProvisioningResult{}, ErrInFlight
	}
	defer m.inFlight.Unlock()

	var ephemeralBackupKey *domain.BackupKey
	if shouldLinkAndSync && url.Has(domain.CapabilityLinkAndSync) {
		k, err := m.newBackupKey()
		if err != nil {
			return domain.ProvisioningResult{}, errors.WithMessage(err, "generate ephemeral backup key")
		}
		ephemeralBackupKey = &k
	}

	snap, err := m.snapshot()
	if err != nil {
		jww.ERROR.Printf("provisioning: %v", err)
		return domain.ProvisioningResult{}, err
	}

	var peerExtraKey []byte
	if m.attachPeerExtraKey {
		peerExtraKey, err = provproto.DerivePeerExtraPublicKey(snap.aci.Private)
		if err != nil {
			return domain.ProvisioningResult{}, errors.WithMessage(err, "derive peer extra key")
		}
	}

	code, err := m.relay.RequestProvisioningCode(ctx)
	if err != nil {
		return domain.ProvisioningResult{}, err
	}

	msg := domain.ProvisioningMessage{
		Version:            provproto.CurrentVersion,
		PhoneNumber:        snap.ids.PhoneNumber,
		ACI:                snap.ids.ACI,
		PNI:                snap.ids.PNI,
		RootKey:            snap.rootKey,
		ACIIdentityKeyPair: snap.aci,
		PNIIdentityKeyPair: snap.pni,
		ProfileKey:         snap.profileKey,
		MediaRootBackupKey: snap.mrbk,
		EphemeralBackupKey: ephemeralBackupKey,
		ReadReceipts:       snap.readReceipts,
		ProvisioningCode:   code.VerificationCode,
		PeerExtraPublicKey: peerExtraKey,
	}
	body, err := provproto.Encode(msg, url.PublicKey)
	if err != nil {
		return domain.ProvisioningResult{}, err
	}

	if err := m.relay.SendProvisioningMessage(ctx, url.EphemeralDeviceID, body); err != nil {
		return domain.ProvisioningResult{}, err
	}
	jww.INFO.Printf("provisioning: sent message to %s (link and sync: %t)",
		url.EphemeralDeviceID, ephemeralBackupKey != nil)

	return domain.ProvisioningResult{
		EphemeralBackupKey: ephemeralBackupKey,
		TokenID:            code.TokenID,
	}, nil
}

// snapshot reads everything Provision sends in one write transaction. The
// media root backup key is created and stored here if the account lacks one.
func (m *Manager) snapshot() (accountSnapshot, error) {
	var snap accountSnapshot
	err := m.keys.Write(func(tx domain.KeyStateWriter) error {
		ids, ok := tx.LocalIdentifiers()
		if !ok || !ids.Complete() {
			return precondition("local identifiers")
		}
		aci, ok := tx.IdentityKeyPair(domain.RoleACI)
		if !ok {
			return precondition("aci identity key pair")
		}
		pni, ok := tx.IdentityKeyPair(domain.RolePNI)
		if !ok {
			return precondition("pni identity key pair")
		}

		var rootKey domain.RootKey
		if pool, ok := tx.AccountEntropyPool(); ok {
			rootKey = domain.EntropyPoolRootKey{Pool: pool}
		} else if mk, ok := tx.MasterKey(); ok {
			rootKey = domain.MasterKeyRootKey{Key: mk}
		} else {
			return precondition("root key")
		}

		profileKey, ok := tx.ProfileKey()
		if !ok {
			return precondition("profile key")
		}

		mrbk, ok := tx.MediaRootBackupKey()
		if !ok {
			var err error
			if mrbk, err = m.newBackupKey(); err != nil {
				return errors.WithMessage(err, "generate media root backup key")
			}
			tx.SetMediaRootBackupKey(mrbk)
			jww.DEBUG.Printf("provisioning: created media root backup key")
		}

		snap = accountSnapshot{
			ids:          ids,
			aci:          aci,
			pni:          pni,
			rootKey:      rootKey,
			profileKey:   profileKey,
			mrbk:         mrbk,
			readReceipts: tx.ReadReceipts(),
		}
		return nil
	})
	return snap, err
}

func randomBackupKey() (domain.BackupKey, error) {
	k, err := crypto.Random32()
	return domain.BackupKey(k), err
}

var _ domain.Initiator = (*Manager)(nil)
