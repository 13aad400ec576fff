// Package prekey manages signed pre-keys and one-time pre-keys for both
// identity roles.
//
// After a device joins an account it generates a fresh signed pre-key per
// role, signs it with the signing key derived from that role's identity,
// adds a batch of one-time pre-keys and uploads the public bundle.
package prekey
