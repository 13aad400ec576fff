package types

import "github.com/pkg/errors"

// Error kinds shared by every layer. Callers compare with errors.Is.
var (
	// ErrFatalPrecondition marks required local state that is absent. It is
	// never retried.
	ErrFatalPrecondition = errors.New("required local state missing")

	// ErrTransport marks a failed coordination-service round trip.
	ErrTransport = errors.New("coordination service unavailable")

	// ErrPersistenceConflict marks an optimistic update that kept losing races.
	ErrPersistenceConflict = errors.New("concurrent record modification")

	// ErrNotFound marks a keyed lookup miss.
	ErrNotFound = errors.New("not found")
)

// Validation errors.
var (
	ErrInvalidServiceID       = errors.New("invalid service id")
	ErrInvalidE164            = errors.New("invalid e164 phone number")
	ErrInvalidEntropyPool     = errors.New("invalid account entropy pool")
	ErrInvalidIdentityRole    = errors.New("invalid identity role")
	ErrIdentityKeyMismatch    = errors.New("identity key pair mismatch")
	ErrEmptyPeerExtraKey      = errors.New("empty peer extra public key")
	ErrPeerExtraKeyFields     = errors.New("peer extra public key and timestamp must be set together")
	ErrIncompleteProvisioning = errors.New("incomplete provisioning message")
)
