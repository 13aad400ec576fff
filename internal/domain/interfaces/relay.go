package interfaces

import (
	"context"

	domaintypes "cipherlink/internal/domain/types"
)

// ProvisioningService is the primary's side of the coordination service.
type ProvisioningService interface {
	RequestProvisioningCode(ctx context.Context) (domaintypes.ProvisioningCode, error)
	SendProvisioningMessage(
		ctx context.Context,
		destination domaintypes.EphemeralDeviceID,
		body []byte,
	) error
}

// ProvisioningMailbox is the new device's side: it opens an ephemeral
// mailbox and waits for the primary's sealed message to land in it.
type ProvisioningMailbox interface {
	OpenProvisioningChannel(ctx context.Context) (domaintypes.EphemeralDeviceID, error)
	WaitForProvisioningMessage(
		ctx context.Context,
		id domaintypes.EphemeralDeviceID,
	) ([]byte, error)
}

// DeviceService links devices to an account and accepts their pre-keys.
type DeviceService interface {
	LinkDevice(
		ctx context.Context,
		req domaintypes.DeviceLinkRequest,
	) (domaintypes.DeviceLinkResponse, error)
	UploadPreKeys(ctx context.Context, bundle domaintypes.PreKeyBundle) error
}

// RelayClient is how we talk to the coordination service, all with context.
type RelayClient interface {
	ProvisioningService
	ProvisioningMailbox
	DeviceService
}
