package types

// LocalIdentifiers are the identifiers of the account this device belongs to.
type LocalIdentifiers struct {
	ACI         ACI  `json:"aci"`
	PNI         PNI  `json:"pni"`
	PhoneNumber E164 `json:"phone_number"`
}

// Complete reports whether both identifiers and the number are set.
func (l LocalIdentifiers) Complete() bool {
	return !l.ACI.IsZero() && !l.PNI.IsZero() && l.PhoneNumber != ""
}

// RegistrationState is this device's standing within the account.
type RegistrationState struct {
	DeviceID       DeviceID `json:"device_id"`
	DeviceName     string   `json:"device_name,omitempty"`
	IsPrimary      bool     `json:"is_primary"`
	LinkedAtMillis int64    `json:"linked_at_ms,omitempty"`
}

// DeviceLinkRequest is sent by a new device to redeem a provisioning code.
type DeviceLinkRequest struct {
	VerificationCode string `json:"verification_code"`
	ACI              ACI    `json:"aci"`
	PNI              PNI    `json:"pni"`
	DeviceName       string `json:"device_name"`
}

// DeviceLinkResponse carries the device id the service assigned.
type DeviceLinkResponse struct {
	ACI      ACI      `json:"aci"`
	PNI      PNI      `json:"pni"`
	DeviceID DeviceID `json:"device_id"`
}
