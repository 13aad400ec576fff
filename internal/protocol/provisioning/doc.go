// Package provisioning implements the device-linking wire protocol.
//
// # Message format
//
// A ProvisioningMessage is serialized as protobuf-compatible tagged fields
// (see the field constants in codec.go). Version comes first. Optional
// fields are left off the wire when absent, so presence survives a round
// trip: a nil peer extra public key is absent, an empty one is present.
// Unknown field numbers are skipped; an unknown (newer) version is not.
//
// # Envelope
//
// The serialized message is sealed to the new device's ephemeral X25519
// key:
//
//	ephemeralPublic(32) || nonce(12) || ChaCha20-Poly1305(ciphertext || tag)
//
// The AEAD key is HKDF-SHA256 over the X25519 shared secret. Both public keys
// are authenticated as associated data.
//
// # Link URL
//
// The new device advertises its mailbox id, public key and capabilities in
// a cipherlink://linkdevice URL (FormatURL, ParseURL).
//
// # Errors
//
// ErrEncoding: the message was invalid before any encryption happened.
// ErrDecryption: the envelope could not be opened.
// ErrMalformedMessage and ErrUnsupportedVersion: the plaintext was bad.
package provisioning
