package registration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlink/internal/domain"
	"cipherlink/internal/services/registration"
	"cipherlink/internal/store"
)

func TestDidProvisionSecondary(t *testing.T) {
	keys := store.NewKeyStateMemoryStore()
	svc := registration.New(keys)
	aci, pni := domain.NewACI(), domain.NewPNI()

	_, ok, err := svc.State()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.DidProvisionSecondary(context.Background(), "+17875550100", aci, pni, "tablet", 2))

	state, ok, err := svc.State()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.DeviceID(2), state.DeviceID)
	assert.Equal(t, "tablet", state.DeviceName)
	assert.False(t, state.IsPrimary)
	assert.NotZero(t, state.LinkedAtMillis)

	require.NoError(t, keys.Read(func(tx domain.KeyStateReader) error {
		ids, ok := tx.LocalIdentifiers()
		assert.True(t, ok)
		assert.Equal(t, domain.LocalIdentifiers{ACI: aci, PNI: pni, PhoneNumber: "+17875550100"}, ids)
		return nil
	}))
}

func TestDidProvisionSecondary_Rejects(t *testing.T) {
	ctx := context.Background()
	svc := registration.New(store.NewKeyStateMemoryStore())
	aci, pni := domain.NewACI(), domain.NewPNI()

	err := svc.DidProvisionSecondary(ctx, "+17875550100", aci, pni, "x", domain.PrimaryDeviceID)
	require.ErrorIs(t, err, registration.ErrNotSecondaryDevice)

	err = svc.DidProvisionSecondary(ctx, "", aci, pni, "x", 2)
	require.ErrorIs(t, err, domain.ErrFatalPrecondition)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = svc.DidProvisionSecondary(cancelled, "+17875550100", aci, pni, "x", 2)
	require.ErrorIs(t, err, context.Canceled)

	_, ok, err := svc.State()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDidRegisterPrimary(t *testing.T) {
	svc := registration.New(store.NewKeyStateMemoryStore())
	ids := domain.LocalIdentifiers{ACI: domain.NewACI(), PNI: domain.NewPNI(), PhoneNumber: "+17875550100"}

	require.NoError(t, svc.DidRegisterPrimary(context.Background(), ids))
	state, ok, err := svc.State()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, state.IsPrimary)
	assert.Equal(t, domain.PrimaryDeviceID, state.DeviceID)
}
