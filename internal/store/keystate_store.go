package store

import (
	"encoding/json"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
)

const keyStateFile = "keystate.json.enc"

// keyState is everything the device knows about its own account. It is
// serialized as one encrypted JSON document.
type keyState struct {
	LocalIdentifiers   *domain.LocalIdentifiers                       `json:"local_identifiers,omitempty"`
	IdentityKeys       map[domain.IdentityRole]domain.IdentityKeyPair `json:"identity_keys,omitempty"`
	AccountEntropyPool domain.AccountEntropyPool                      `json:"account_entropy_pool,omitempty"`
	MasterKey          *domain.MasterKey                              `json:"master_key,omitempty"`
	MediaRootBackupKey *domain.BackupKey                              `json:"media_root_backup_key,omitempty"`
	ProfileKey         *domain.ProfileKey                             `json:"profile_key,omitempty"`
	ReadReceipts       bool                                           `json:"read_receipts"`
	Registration       *domain.RegistrationState                      `json:"registration,omitempty"`
}

func (s *keyState) clone() *keyState {
	out := *s
	out.IdentityKeys = make(map[domain.IdentityRole]domain.IdentityKeyPair, len(s.IdentityKeys))
	for role, kp := range s.IdentityKeys {
		out.IdentityKeys[role] = kp
	}
	out.LocalIdentifiers = clonePtr(s.LocalIdentifiers)
	out.MasterKey = clonePtr(s.MasterKey)
	out.MediaRootBackupKey = clonePtr(s.MediaRootBackupKey)
	out.ProfileKey = clonePtr(s.ProfileKey)
	out.Registration = clonePtr(s.Registration)
	return &out
}

func (s *keyState) wipe() {
	clear(s.IdentityKeys)
	if s.MasterKey != nil {
		crypto.WipeKey(s.MasterKey)
	}
	if s.MediaRootBackupKey != nil {
		crypto.WipeKey(s.MediaRootBackupKey)
	}
	if s.ProfileKey != nil {
		crypto.WipeKey(s.ProfileKey)
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// KeyStateStore holds the device's key state in memory and, when backed by a
// directory, persists it encrypted under a passphrase after every write.
//
// Read transactions share a read lock; a write transaction works on a copy
// that replaces the live state only after fn succeeded and the copy was
// persisted. Calling Write from inside Read (or the reverse) deadlocks.
type KeyStateStore struct {
	mu    sync.RWMutex
	state *keyState

	path       string
	passphrase string
	params     scryptParams
}

// KeyStateOption configures a KeyStateStore.
type KeyStateOption func(*KeyStateStore)

// WithScryptParams overrides the key-derivation cost. Tests use small values.
func WithScryptParams(n, r, p int) KeyStateOption {
	return func(s *KeyStateStore) { s.params = scryptParams{N: n, R: r, P: p} }
}

// OpenKeyStateFileStore loads the key state under dir, or starts empty if
// none was written yet. A wrong passphrase fails here with ErrWrongPassphrase.
func OpenKeyStateFileStore(dir, passphrase string, opts ...KeyStateOption) (*KeyStateStore, error) {
	s := &KeyStateStore{
		state:      &keyState{},
		path:       filepath.Join(dir, keyStateFile),
		passphrase: passphrase,
		params:     defaultScryptParams(),
	}
	for _, opt := range opts {
		opt(s)
	}

	b, err := readFile(s.path)
	if err != nil {
		return nil, errors.Wrap(err, "read key state")
	}
	if b == nil {
		jww.DEBUG.Printf("no key state at %s, starting empty", s.path)
		return s, nil
	}
	raw, err := unseal(passphrase, b)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(raw)
	if err := json.Unmarshal(raw, s.state); err != nil {
		return nil, errors.Wrap(err, "decode key state")
	}
	return s, nil
}

// NewKeyStateMemoryStore returns a store that never touches disk.
func NewKeyStateMemoryStore() *KeyStateStore {
	return &KeyStateStore{state: &keyState{}}
}

// Read runs fn against a consistent view of the key state.
func (s *KeyStateStore) Read(fn func(tx domain.KeyStateReader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&keyStateTx{state: s.state})
}

// Write runs fn against a private copy and commits it atomically.
func (s *KeyStateStore) Write(fn func(tx domain.KeyStateWriter) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	if err := fn(&keyStateTx{state: next}); err != nil {
		next.wipe()
		return err
	}
	if err := s.persist(next); err != nil {
		next.wipe()
		return err
	}
	s.state = next
	return nil
}

func (s *KeyStateStore) persist(st *keyState) error {
	if s.path == "" {
		return nil
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "encode key state")
	}
	defer crypto.Wipe(raw)
	sealed, err := seal(s.passphrase, raw, s.params)
	if err != nil {
		return err
	}
	return errors.Wrap(writeFile(s.path, sealed, 0o600), "write key state")
}

// keyStateTx adapts a keyState to the transaction interfaces.
type keyStateTx struct {
	state *keyState
}

func (tx *keyStateTx) LocalIdentifiers() (domain.LocalIdentifiers, bool) {
	if tx.state.LocalIdentifiers == nil {
		return domain.LocalIdentifiers{}, false
	}
	return *tx.state.LocalIdentifiers, true
}

func (tx *keyStateTx) IdentityKeyPair(role domain.IdentityRole) (domain.IdentityKeyPair, bool) {
	kp, ok := tx.state.IdentityKeys[role]
	return kp, ok
}

func (tx *keyStateTx) AccountEntropyPool() (domain.AccountEntropyPool, bool) {
	return tx.state.AccountEntropyPool, tx.state.AccountEntropyPool != ""
}

func (tx *keyStateTx) MasterKey() (domain.MasterKey, bool) {
	if tx.state.MasterKey == nil {
		return domain.MasterKey{}, false
	}
	return *tx.state.MasterKey, true
}

func (tx *keyStateTx) MediaRootBackupKey() (domain.BackupKey, bool) {
	if tx.state.MediaRootBackupKey == nil {
		return domain.BackupKey{}, false
	}
	return *tx.state.MediaRootBackupKey, true
}

func (tx *keyStateTx) ProfileKey() (domain.ProfileKey, bool) {
	if tx.state.ProfileKey == nil {
		return domain.ProfileKey{}, false
	}
	return *tx.state.ProfileKey, true
}

func (tx *keyStateTx) ReadReceipts() bool { return tx.state.ReadReceipts }

func (tx *keyStateTx) RegistrationState() (domain.RegistrationState, bool) {
	if tx.state.Registration == nil {
		return domain.RegistrationState{}, false
	}
	return *tx.state.Registration, true
}

func (tx *keyStateTx) SetLocalIdentifiers(ids domain.LocalIdentifiers) {
	tx.state.LocalIdentifiers = &ids
}

func (tx *keyStateTx) SetIdentityKeyPair(role domain.IdentityRole, kp domain.IdentityKeyPair) {
	if tx.state.IdentityKeys == nil {
		tx.state.IdentityKeys = make(map[domain.IdentityRole]domain.IdentityKeyPair)
	}
	tx.state.IdentityKeys[role] = kp
}

func (tx *keyStateTx) SetAccountEntropyPool(pool domain.AccountEntropyPool) {
	tx.state.AccountEntropyPool = pool
}

func (tx *keyStateTx) ClearAccountEntropyPool() { tx.state.AccountEntropyPool = "" }

func (tx *keyStateTx) SetMasterKey(key domain.MasterKey) { tx.state.MasterKey = &key }

func (tx *keyStateTx) SetMediaRootBackupKey(key domain.BackupKey) {
	tx.state.MediaRootBackupKey = &key
}

func (tx *keyStateTx) SetProfileKey(key domain.ProfileKey) { tx.state.ProfileKey = &key }

func (tx *keyStateTx) SetReadReceipts(enabled bool) { tx.state.ReadReceipts = enabled }

func (tx *keyStateTx) SetRegistrationState(state domain.RegistrationState) {
	tx.state.Registration = &state
}

// Compile-time assertions.
var (
	_ domain.KeyStateStore  = (*KeyStateStore)(nil)
	_ domain.KeyStateWriter = (*keyStateTx)(nil)
)
