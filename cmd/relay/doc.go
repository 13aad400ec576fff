// Package main runs the in-memory coordination service cipherlink devices
// use to link. It issues provisioning codes, relays sealed provisioning
// messages between a primary and a new device, assigns device ids and
// keeps published pre-key bundles.
//
// HTTP API
//
//	GET /v1/devices/provisioning/code
//	    Issue a single-use provisioning code to a primary. Rate limited per
//	    client IP.
//
//	PUT /v1/devices/link
//	    Redeem a provisioning code and assign the next device id of the
//	    account. Unknown, expired or reused codes get 403.
//
//	POST /v1/provisioning
//	    Open a mailbox for a new device and return its ephemeral id.
//
//	PUT /v1/provisioning/{uuid}
//	    Deliver a sealed provisioning message. Each mailbox takes one.
//
//	GET /v1/provisioning/{uuid}
//	    Fetch the message (200) or learn that none arrived yet (204).
//
//	PUT /v1/keys/{role}
//	    Store a device's pre-key bundle for an identity role.
//
//	GET /metrics
//	    Prometheus metrics.
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - Responses are JSON. Non-2xx statuses carry a short error message.
//   - Every request is logged with method, route, status and duration.
//   - The default listen address is :8080.
//
// The service never sees plaintext key material; provisioning messages are
// sealed to the new device's ephemeral key before they arrive.
package main
