package relay

import "cipherlink/internal/domain"

// Request and response bodies shared by HTTPClient and Server.

type provisioningMessage struct {
	Body []byte `json:"body"`
}

type provisioningChannel struct {
	UUID domain.EphemeralDeviceID `json:"uuid"`
}
