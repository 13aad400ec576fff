// Package relay connects cipherlink to the coordination service that brokers
// device linking, and provides an in-memory implementation of that service.
//
// HTTPClient implements domain.RelayClient. Supported operations include:
//   - Requesting a single-use provisioning code (primary).
//   - Delivering a sealed provisioning message to a new device's mailbox.
//   - Opening a mailbox and waiting for the message (new device).
//   - Redeeming the provisioning code for a device id.
//   - Publishing pre-key bundles per identity role.
//
// All requests are JSON over HTTP and accept a context for cancellation and
// deadlines. Network failures and non-2xx statuses match domain.ErrTransport;
// the latter are returned as *StatusError with the method, path and status.
//
// Server serves the same API from memory, rate limits code issuance per
// client IP and exports Prometheus metrics on /metrics.
package relay
