package provisioning

import (
	"context"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	provproto "cipherlink/internal/protocol/provisioning"
)

// CoordinatorRelay is the part of the coordination service a new device
// uses while linking.
type CoordinatorRelay interface {
	domain.DeviceService
	domain.ProvisioningMailbox
}

// Coordinator installs a received provisioning message on a new device.
type Coordinator struct {
	keys         domain.KeyStateStore
	records      domain.AccountRecordStore
	relay        CoordinatorRelay
	registration domain.RegistrationStateManager
	prekeys      domain.PreKeyManager
	now          func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithClock sets the clock used for the peer extra key timestamp.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator wires a Coordinator.
func NewCoordinator(
	keys domain.KeyStateStore,
	records domain.AccountRecordStore,
	relay CoordinatorRelay,
	registration domain.RegistrationStateManager,
	prekeys domain.PreKeyManager,
	opts ...CoordinatorOption,
) *Coordinator {
	c := &Coordinator{
		keys:         keys,
		records:      records,
		relay:        relay,
		registration: registration,
		prekeys:      prekeys,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LinkResult is what AcceptFromMailbox hands back to the caller.
type LinkResult struct {
	State              domain.RegistrationState
	EphemeralBackupKey *domain.BackupKey
}

// AcceptFromMailbox runs the whole new-device side of linking. It opens a
// mailbox under a fresh ephemeral key, passes the link URL to onURL for
// display, waits for the primary's message and completes provisioning
// with it.
func (c *Coordinator) AcceptFromMailbox(
	ctx context.Context,
	deviceName string,
	capabilities []domain.Capability,
	onURL func(domain.ProvisioningURL),
) (LinkResult, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return LinkResult{}, err
	}
	defer crypto.WipeKey(&priv)

	id, err := c.relay.OpenProvisioningChannel(ctx)
	if err != nil {
		return LinkResult{}, err
	}
	if onURL != nil {
		onURL(domain.ProvisioningURL{
			EphemeralDeviceID: id,
			PublicKey:         pub,
			Capabilities:      capabilities,
		})
	}

	jww.INFO.Printf("provisioning: waiting for message on %s", id)
	body, err := c.relay.WaitForProvisioningMessage(ctx, id)
	if err != nil {
		return LinkResult{}, err
	}
	msg, err := provproto.Decode(body, priv)
	if err != nil {
		return LinkResult{}, err
	}

	state, err := c.CompleteProvisioning(ctx, msg, deviceName)
	if err != nil {
		return LinkResult{}, err
	}
	return LinkResult{State: state, EphemeralBackupKey: msg.EphemeralBackupKey}, nil
}

// CompleteProvisioning joins this device to the account described by msg.
//
// The message is checked before anything else happens; an invalid one
// fails with ErrMalformedMessage and leaves every store untouched. The
// provisioning code is redeemed next, then the key material is installed
// in one key state transaction. A non-empty peer extra public key is
// written to the account record of msg.ACI together with the current
// time, leaving the rest of the record as it was. A master key payload
// clears any stored account entropy pool. Once the code is redeemed, every
// failure (the peer key write, the registration callback, pre-key
// publication) comes back as *FinalizationError.
func (c *Coordinator) CompleteProvisioning(
	ctx context.Context,
	msg domain.ProvisioningMessage,
	deviceName string,
) (domain.RegistrationState, error) {
	if err := msg.Validate(); err != nil {
		return domain.RegistrationState{}, errors.WithMessagef(provproto.ErrMalformedMessage, "%v", err)
	}
	masterKey := msg.RootKey.DeriveMasterKey()
	defer crypto.WipeKey(&masterKey)

	link, err := c.relay.LinkDevice(ctx, domain.DeviceLinkRequest{
		VerificationCode: msg.ProvisioningCode,
		ACI:              msg.ACI,
		PNI:              msg.PNI,
		DeviceName:       deviceName,
	})
	if err != nil {
		return domain.RegistrationState{}, err
	}
	jww.INFO.Printf("provisioning: linked as device %d of %s", link.DeviceID, msg.ACI)

	err = c.keys.Write(func(tx domain.KeyStateWriter) error {
		for _, role := range domain.IdentityRoles {
			tx.SetIdentityKeyPair(role, msg.IdentityKeyPair(role))
		}
		tx.SetProfileKey(msg.ProfileKey)
		tx.SetMediaRootBackupKey(msg.MediaRootBackupKey)
		tx.SetReadReceipts(msg.ReadReceipts)
		tx.SetMasterKey(masterKey)
		// A pool left by an earlier account would no longer derive the
		// installed master key.
		if rk, ok := msg.RootKey.(domain.EntropyPoolRootKey); ok {
			tx.SetAccountEntropyPool(rk.Pool)
		} else {
			tx.ClearAccountEntropyPool()
		}
		return nil
	})
	if err != nil {
		return domain.RegistrationState{}, errors.WithMessage(err, "install key material")
	}

	if err := c.storePeerExtraKey(ctx, msg); err != nil {
		return domain.RegistrationState{}, &FinalizationError{Step: "peer extra key", Err: err}
	}

	if err := c.registration.DidProvisionSecondary(
		ctx, msg.PhoneNumber, msg.ACI, msg.PNI, deviceName, link.DeviceID,
	); err != nil {
		return domain.RegistrationState{}, &FinalizationError{Step: "registration", Err: err}
	}
	if err := c.prekeys.FinalizeRegistrationPreKeys(ctx); err != nil {
		return domain.RegistrationState{}, &FinalizationError{Step: "pre-keys", Err: err}
	}

	var state domain.RegistrationState
	err = c.keys.Read(func(tx domain.KeyStateReader) error {
		var ok bool
		if state, ok = tx.RegistrationState(); !ok {
			return precondition("registration state")
		}
		return nil
	})
	if err != nil {
		return domain.RegistrationState{}, &FinalizationError{Step: "registration", Err: err}
	}
	return state, nil
}

// storePeerExtraKey records the primary's peer extra public key on its
// account record. An absent or empty key changes nothing.
func (c *Coordinator) storePeerExtraKey(ctx context.Context, msg domain.ProvisioningMessage) error {
	if len(msg.PeerExtraPublicKey) == 0 {
		if msg.PeerExtraPublicKey != nil {
			jww.WARN.Printf("provisioning: ignoring empty peer extra public key")
		}
		return nil
	}
	_, err := c.records.UpdateAccountRecord(ctx, msg.ACI.ServiceID(),
		func(rec *domain.AccountRecord) bool {
			changed := false
			if rec.RecipientPhoneNumber == "" {
				rec.RecipientPhoneNumber = msg.PhoneNumber
				changed = true
			}
			update := domain.PeerExtraKeyUpdate{
				Key:             msg.PeerExtraPublicKey,
				TimestampMillis: c.now().UnixMilli(),
			}
			return update.Apply(rec) || changed
		})
	if err != nil {
		return errors.WithMessage(err, "store peer extra public key")
	}
	jww.DEBUG.Printf("provisioning: stored peer extra public key for %s", msg.ACI)
	return nil
}

var _ domain.Acceptor = (*Coordinator)(nil)
