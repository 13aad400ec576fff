package registration

import (
	"context"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"cipherlink/internal/domain"
)

// ErrNotSecondaryDevice is returned when a linked device is handed the
// primary's device id.
var ErrNotSecondaryDevice = errors.New("linked device cannot use the primary device id")

// Service stores registration state in the key state store.
type Service struct {
	keys domain.KeyStateStore
	now  func() time.Time
}

// New returns a registration service over keys.
func New(keys domain.KeyStateStore) *Service {
	return &Service{keys: keys, now: time.Now}
}

// DidProvisionSecondary records that this device was linked to the account
// of aci as deviceID.
func (s *Service) DidProvisionSecondary(
	ctx context.Context,
	phone domain.E164,
	aci domain.ACI,
	pni domain.PNI,
	deviceName string,
	deviceID domain.DeviceID,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deviceID <= domain.PrimaryDeviceID {
		return errors.Wrapf(ErrNotSecondaryDevice, "device id %d", deviceID)
	}
	ids := domain.LocalIdentifiers{ACI: aci, PNI: pni, PhoneNumber: phone}
	if !ids.Complete() {
		return errors.Wrap(domain.ErrFatalPrecondition, "incomplete local identifiers")
	}
	err := s.keys.Write(func(tx domain.KeyStateWriter) error {
		tx.SetLocalIdentifiers(ids)
		tx.SetRegistrationState(domain.RegistrationState{
			DeviceID:       deviceID,
			DeviceName:     deviceName,
			LinkedAtMillis: s.now().UnixMilli(),
		})
		return nil
	})
	if err != nil {
		return err
	}
	jww.INFO.Printf("registration: device %d of %s (%s)", deviceID, aci, phone)
	return nil
}

// DidRegisterPrimary records that this device is the primary of ids.
func (s *Service) DidRegisterPrimary(ctx context.Context, ids domain.LocalIdentifiers) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ids.Complete() {
		return errors.Wrap(domain.ErrFatalPrecondition, "incomplete local identifiers")
	}
	return s.keys.Write(func(tx domain.KeyStateWriter) error {
		tx.SetLocalIdentifiers(ids)
		tx.SetRegistrationState(domain.RegistrationState{
			DeviceID:  domain.PrimaryDeviceID,
			IsPrimary: true,
		})
		return nil
	})
}

// State returns the stored registration state, if any.
func (s *Service) State() (domain.RegistrationState, bool, error) {
	var (
		state domain.RegistrationState
		ok    bool
	)
	err := s.keys.Read(func(tx domain.KeyStateReader) error {
		state, ok = tx.RegistrationState()
		return nil
	})
	return state, ok, err
}

var _ domain.RegistrationStateManager = (*Service)(nil)
