// Package store provides persistence for cipherlink's device and account
// state.
//
// It contains concrete implementations of the domain storage interfaces:
//   - Key state (KeyStateStore): identifiers, identity key pairs, root key
//     material, profile and backup keys, registration state. Kept as one
//     JSON document sealed under a passphrase (scrypt + ChaCha20-Poly1305)
//     and replaced atomically on every write transaction.
//   - Pre-keys (PrekeyFileStore): signed and one-time pre-keys, one JSON
//     document per identity role.
//   - Account records (AccountRecordDB): a gorm table on SQLite or
//     PostgreSQL with versioned, forward-only schema migrations and
//     optimistic record versioning.
//
// All methods are concurrency-safe. Files live under the configured home
// directory.
package store
