package interfaces

import (
	"context"

	domaintypes "cipherlink/internal/domain/types"
)

// IdentityService bootstraps a primary account and inspects identity keys.
type IdentityService interface {
	RegisterPrimary(phone domaintypes.E164) (domaintypes.LocalIdentifiers, error)
	FingerprintIdentity(role domaintypes.IdentityRole) (domaintypes.Fingerprint, error)
}

// Initiator runs device linking on the primary.
type Initiator interface {
	Provision(
		ctx context.Context,
		url domaintypes.ProvisioningURL,
		shouldLinkAndSync bool,
	) (domaintypes.ProvisioningResult, error)
}

// Acceptor completes device linking on the new device.
type Acceptor interface {
	CompleteProvisioning(
		ctx context.Context,
		msg domaintypes.ProvisioningMessage,
		deviceName string,
	) (domaintypes.RegistrationState, error)
}

// RegistrationStateManager records that this device joined an account.
type RegistrationStateManager interface {
	DidProvisionSecondary(
		ctx context.Context,
		phone domaintypes.E164,
		aci domaintypes.ACI,
		pni domaintypes.PNI,
		deviceName string,
		deviceID domaintypes.DeviceID,
	) error
}

// PreKeyManager generates and publishes pre-keys for the installed identities.
type PreKeyManager interface {
	FinalizeRegistrationPreKeys(ctx context.Context) error
}
