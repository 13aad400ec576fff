// Package identity bootstraps a primary account on this device and
// inspects its identity keys.
//
// It enforces the key store passphrase policy, generates the ACI and PNI
// with an identity key pair for each, the account entropy pool and the
// profile key, and persists them through the domain.KeyStateStore.
package identity
