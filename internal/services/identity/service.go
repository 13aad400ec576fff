package identity

import (
	"fmt"
	"unicode"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)

	// ErrAlreadyRegistered is returned by RegisterPrimary when this device
	// already belongs to an account.
	ErrAlreadyRegistered = errors.New("device already belongs to an account")
)

// Service manages the account identity held in the key state store.
//
// The identity contains:
//   - The ACI and PNI service ids plus the phone number.
//   - An X25519 identity key pair per role. Pre-key signing keys are
//     derived from these.
//   - The account entropy pool the master key is derived from.
type Service struct {
	keys domain.KeyStateStore
}

// New returns an identity service backed by the given store.
func New(keys domain.KeyStateStore) *Service { return &Service{keys: keys} }

// ValidatePassphrase reports ErrWeakPassphrase for passphrases that do not
// meet the key store policy.
func ValidatePassphrase(passphrase string) error {
	if !isSecurePassphrase(passphrase) {
		return ErrWeakPassphrase
	}
	return nil
}

// RegisterPrimary creates a fresh account with this device as its primary.
func (s *Service) RegisterPrimary(phone domain.E164) (domain.LocalIdentifiers, error) {
	phone, err := domain.ParseE164(phone.String())
	if err != nil {
		return domain.LocalIdentifiers{}, err
	}
	ids := domain.LocalIdentifiers{
		ACI:         domain.NewACI(),
		PNI:         domain.NewPNI(),
		PhoneNumber: phone,
	}

	pairs := make(map[domain.IdentityRole]domain.IdentityKeyPair, len(domain.IdentityRoles))
	for _, role := range domain.IdentityRoles {
		kp, err := crypto.GenerateIdentityKeyPair()
		if err != nil {
			return domain.LocalIdentifiers{}, err
		}
		pairs[role] = kp
	}
	pool, err := domain.NewAccountEntropyPool()
	if err != nil {
		return domain.LocalIdentifiers{}, err
	}
	profileKey, err := crypto.Random32()
	if err != nil {
		return domain.LocalIdentifiers{}, err
	}

	err = s.keys.Write(func(tx domain.KeyStateWriter) error {
		if _, ok := tx.LocalIdentifiers(); ok {
			return ErrAlreadyRegistered
		}
		tx.SetLocalIdentifiers(ids)
		for role, kp := range pairs {
			tx.SetIdentityKeyPair(role, kp)
		}
		tx.SetAccountEntropyPool(pool)
		tx.SetMasterKey(pool.MasterKey())
		tx.SetProfileKey(domain.ProfileKey(profileKey))
		tx.SetReadReceipts(true)
		tx.SetRegistrationState(domain.RegistrationState{
			DeviceID:  domain.PrimaryDeviceID,
			IsPrimary: true,
		})
		return nil
	})
	if err != nil {
		return domain.LocalIdentifiers{}, err
	}
	jww.INFO.Printf("identity: registered %s as primary for %s", ids.ACI, phone)
	return ids, nil
}

// FingerprintIdentity returns a short fingerprint of the identity public
// key for role.
func (s *Service) FingerprintIdentity(role domain.IdentityRole) (domain.Fingerprint, error) {
	var pub domain.X25519Public
	err := s.keys.Read(func(tx domain.KeyStateReader) error {
		kp, ok := tx.IdentityKeyPair(role)
		if !ok {
			return errors.Wrapf(domain.ErrFatalPrecondition, "%s identity key pair not available", role)
		}
		pub = kp.Public
		return nil
	})
	if err != nil {
		return "", err
	}
	return crypto.Fingerprint(pub.Slice()), nil
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
