package interfaces

import (
	"context"

	domaintypes "cipherlink/internal/domain/types"
)

// KeyStateReader is a consistent view of the device's key state.
type KeyStateReader interface {
	LocalIdentifiers() (domaintypes.LocalIdentifiers, bool)
	IdentityKeyPair(role domaintypes.IdentityRole) (domaintypes.IdentityKeyPair, bool)
	AccountEntropyPool() (domaintypes.AccountEntropyPool, bool)
	MasterKey() (domaintypes.MasterKey, bool)
	MediaRootBackupKey() (domaintypes.BackupKey, bool)
	ProfileKey() (domaintypes.ProfileKey, bool)
	ReadReceipts() bool
	RegistrationState() (domaintypes.RegistrationState, bool)
}

// KeyStateWriter mutates key state inside a write transaction.
type KeyStateWriter interface {
	KeyStateReader

	SetLocalIdentifiers(ids domaintypes.LocalIdentifiers)
	SetIdentityKeyPair(role domaintypes.IdentityRole, kp domaintypes.IdentityKeyPair)
	SetAccountEntropyPool(pool domaintypes.AccountEntropyPool)
	ClearAccountEntropyPool()
	SetMasterKey(key domaintypes.MasterKey)
	SetMediaRootBackupKey(key domaintypes.BackupKey)
	SetProfileKey(key domaintypes.ProfileKey)
	SetReadReceipts(enabled bool)
	SetRegistrationState(state domaintypes.RegistrationState)
}

// KeyStateStore runs atomic transactions over the local key state.
//
// Read sees a snapshot no concurrent Write can tear. Write applies every
// mutation made by fn, or none of them if fn returns an error.
type KeyStateStore interface {
	Read(fn func(tx KeyStateReader) error) error
	Write(fn func(tx KeyStateWriter) error) error
}

// AccountRecordStore persists account records keyed by service id.
type AccountRecordStore interface {
	GetAccountRecord(
		ctx context.Context,
		serviceID domaintypes.ServiceID,
	) (domaintypes.AccountRecord, bool, error)
	SaveAccountRecord(ctx context.Context, record *domaintypes.AccountRecord) error

	// UpdateAccountRecord runs mutate as one atomic read-modify-write on the
	// record for serviceID, creating it when absent. Nothing is written if
	// mutate returns false.
	UpdateAccountRecord(
		ctx context.Context,
		serviceID domaintypes.ServiceID,
		mutate func(record *domaintypes.AccountRecord) bool,
	) (domaintypes.AccountRecord, error)
}

// PreKeyStore manages signed and one-time pre-keys on disk, per identity role.
type PreKeyStore interface {
	// Signed pre-key
	SaveSignedPreKey(
		role domaintypes.IdentityRole,
		id domaintypes.SignedPreKeyID,
		priv domaintypes.X25519Private,
		pub domaintypes.X25519Public,
		sig []byte,
	) error
	LoadSignedPreKey(
		role domaintypes.IdentityRole,
		id domaintypes.SignedPreKeyID,
	) (
		priv domaintypes.X25519Private,
		pub domaintypes.X25519Public,
		sig []byte,
		ok bool,
		err error,
	)

	// One-time pre-keys
	SaveOneTimePreKeys(role domaintypes.IdentityRole, pairs []domaintypes.OneTimePreKeyPair) error
	ListOneTimePreKeyPublics(role domaintypes.IdentityRole) ([]domaintypes.OneTimePreKeyPublic, error)

	// Current signed pre-key selection
	SetCurrentSignedPreKeyID(role domaintypes.IdentityRole, id domaintypes.SignedPreKeyID) error
	CurrentSignedPreKeyID(role domaintypes.IdentityRole) (domaintypes.SignedPreKeyID, bool, error)
}
