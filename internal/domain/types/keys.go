package types

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// Ed25519Public is an Ed25519 signing public key.
type Ed25519Public [32]byte

// Slice returns the key as a []byte.
func (p Ed25519Public) Slice() []byte { return p[:] }

// Ed25519Private is an Ed25519 signing private key.
type Ed25519Private [64]byte

// Slice returns the key as a []byte.
func (k Ed25519Private) Slice() []byte { return k[:] }

// ProfileKey encrypts the account's profile.
type ProfileKey [32]byte

// Slice returns the key as a []byte.
func (k ProfileKey) Slice() []byte { return k[:] }

// IsZero reports whether k was never set.
func (k ProfileKey) IsZero() bool { return k == ProfileKey{} }

// BackupKey is a 32-byte backup secret. It is used for both the media root
// backup key and the ephemeral backup-transfer key.
type BackupKey [32]byte

// Slice returns the key as a []byte.
func (k BackupKey) Slice() []byte { return k[:] }

// IsZero reports whether k was never set.
func (k BackupKey) IsZero() bool { return k == BackupKey{} }

// MasterKey is the account's canonical recovery secret.
type MasterKey [32]byte

// Slice returns the key as a []byte.
func (k MasterKey) Slice() []byte { return k[:] }

// IsZero reports whether k was never set.
func (k MasterKey) IsZero() bool { return k == MasterKey{} }
