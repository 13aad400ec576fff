// Package crypto exposes the minimal primitives used by cipherlink.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519,
//     PublicFromPrivate, DH)
//   - Ed25519 key generation, identity-bound signing keys, signing and
//     verification (GenerateEd25519, SigningKeyFromIdentity, SignEd25519,
//     VerifyEd25519)
//   - HKDF-SHA256 expansion and 32-byte random secrets (HKDF, Random32)
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// All functions return fixed-size array types defined in internal/domain to
// avoid accidental reallocations. Callers should treat returned secrets as
// sensitive and rely on Wipe when practical to reduce lifetime in memory.
package crypto
