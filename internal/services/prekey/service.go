package prekey

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
)

// DefaultOneTimePreKeys is how many one-time pre-keys each role gets.
const DefaultOneTimePreKeys = 100

var errNoSignedPreKey = errors.New("no signed pre-key available")

// Service manages pre-key pairs and builds the public bundles.
type Service struct {
	keys    domain.KeyStateStore
	ps      domain.PreKeyStore
	devices domain.DeviceService

	oneTimeCount int
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithOneTimePreKeys sets the batch size of one-time pre-keys per role.
func WithOneTimePreKeys(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.oneTimeCount = n
		}
	}
}

func New(
	keys domain.KeyStateStore,
	ps domain.PreKeyStore,
	devices domain.DeviceService,
	opts ...Option,
) *Service {
	s := &Service{
		keys:         keys,
		ps:           ps,
		devices:      devices,
		oneTimeCount: DefaultOneTimePreKeys,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FinalizeRegistrationPreKeys generates, stores and uploads pre-keys for
// every identity role of this device.
func (s *Service) FinalizeRegistrationPreKeys(ctx context.Context) error {
	var (
		ids   domain.LocalIdentifiers
		state domain.RegistrationState
		pairs = make(map[domain.IdentityRole]domain.IdentityKeyPair, len(domain.IdentityRoles))
	)
	err := s.keys.Read(func(tx domain.KeyStateReader) error {
		var ok bool
		if ids, ok = tx.LocalIdentifiers(); !ok {
			return errors.Wrap(domain.ErrFatalPrecondition, "local identifiers not available")
		}
		if state, ok = tx.RegistrationState(); !ok {
			return errors.Wrap(domain.ErrFatalPrecondition, "registration state not available")
		}
		for _, role := range domain.IdentityRoles {
			kp, ok := tx.IdentityKeyPair(role)
			if !ok {
				return errors.Wrapf(domain.ErrFatalPrecondition, "%s identity key pair not available", role)
			}
			pairs[role] = kp
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer func() {
		for role, kp := range pairs {
			crypto.WipeKey(&kp.Private)
			pairs[role] = kp
		}
	}()

	for _, role := range domain.IdentityRoles {
		if err := s.GenerateAndStore(role, pairs[role].Private, s.oneTimeCount); err != nil {
			return errors.WithMessagef(err, "%s pre-keys", role)
		}
		bundle, err := s.LoadBundle(role, pairs[role], ids.ACI, state.DeviceID)
		if err != nil {
			return errors.WithMessagef(err, "%s bundle", role)
		}
		if err := s.devices.UploadPreKeys(ctx, bundle); err != nil {
			return err
		}
		jww.INFO.Printf("prekey: uploaded %s bundle (%d one-time keys)", role, len(bundle.OneTimePreKeys))
	}
	return nil
}

// GenerateAndStore creates a signed pre-key pair and n one-time pairs for
// role. It also marks the new signed pre-key as current.
func (s *Service) GenerateAndStore(role domain.IdentityRole, identity domain.X25519Private, n int) error {
	signPriv, _, err := crypto.SigningKeyFromIdentity(identity)
	if err != nil {
		return err
	}
	defer crypto.Wipe(signPriv[:])

	// Signed pre-key
	spkPriv, spkPub, err := crypto.GenerateX25519()
	if err != nil {
		return err
	}
	stamp := s.now().UnixNano()
	spkID := domain.SignedPreKeyID(fmt.Sprintf("spk-%d", stamp))
	sig := crypto.SignEd25519(signPriv, spkPub[:])
	if err := s.ps.SaveSignedPreKey(role, spkID, spkPriv, spkPub, sig); err != nil {
		return err
	}
	if err := s.ps.SetCurrentSignedPreKeyID(role, spkID); err != nil {
		return err
	}

	// One-time pre-keys
	pairs := make([]domain.OneTimePreKeyPair, 0, n)
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateX25519()
		if err != nil {
			return err
		}
		id := domain.OneTimePreKeyID(fmt.Sprintf("opk-%d-%d", stamp, i))
		pairs = append(pairs, domain.OneTimePreKeyPair{ID: id, Priv: priv, Pub: pub})
	}
	return s.ps.SaveOneTimePreKeys(role, pairs)
}

// LoadBundle builds the public bundle for role from the current signed
// pre-key and the stored one-time keys.
func (s *Service) LoadBundle(
	role domain.IdentityRole,
	identity domain.IdentityKeyPair,
	aci domain.ACI,
	deviceID domain.DeviceID,
) (domain.PreKeyBundle, error) {
	signPriv, signPub, err := crypto.SigningKeyFromIdentity(identity.Private)
	if err != nil {
		return domain.PreKeyBundle{}, err
	}
	crypto.Wipe(signPriv[:])

	spkID, ok, err := s.ps.CurrentSignedPreKeyID(role)
	if err != nil {
		return domain.PreKeyBundle{}, err
	}
	if !ok {
		return domain.PreKeyBundle{}, errNoSignedPreKey
	}
	_, spkPub, sig, found, err := s.ps.LoadSignedPreKey(role, spkID)
	if err != nil {
		return domain.PreKeyBundle{}, err
	}
	if !found {
		return domain.PreKeyBundle{}, errNoSignedPreKey
	}

	oneTime, err := s.ps.ListOneTimePreKeyPublics(role)
	if err != nil {
		return domain.PreKeyBundle{}, err
	}

	return domain.PreKeyBundle{
		ACI:                   aci,
		DeviceID:              deviceID,
		Role:                  role,
		IdentityKey:           identity.Public,
		SigningKey:            signPub,
		SignedPreKeyID:        spkID,
		SignedPreKey:          spkPub,
		SignedPreKeySignature: sig,
		OneTimePreKeys:        oneTime,
	}, nil
}

var _ domain.PreKeyManager = (*Service)(nil)
