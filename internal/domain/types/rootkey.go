package types

import (
	"crypto/rand"
	"crypto/sha256"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

const (
	// AccountEntropyPoolLength is the number of characters in a pool.
	AccountEntropyPoolLength = 64

	entropyPoolAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

	// entropyPoolMasterKeyInfo separates the master key derivation from every
	// other use of the pool.
	entropyPoolMasterKeyInfo = "cipherlink account entropy pool master key v1"
)

// AccountEntropyPool is the newer root secret: 64 characters of [a-z0-9].
type AccountEntropyPool string

// NewAccountEntropyPool draws a fresh pool from crypto/rand.
func NewAccountEntropyPool() (AccountEntropyPool, error) {
	return newAccountEntropyPool(rand.Reader)
}

func newAccountEntropyPool(r io.Reader) (AccountEntropyPool, error) {
	// 252 is the largest multiple of 36 below 256; larger bytes are
	// rejected to keep the distribution uniform.
	const limit = 252
	out := make([]byte, 0, AccountEntropyPoolLength)
	buf := make([]byte, AccountEntropyPoolLength)
	for len(out) < AccountEntropyPoolLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, entropyPoolAlphabet[int(b)%len(entropyPoolAlphabet)])
			if len(out) == AccountEntropyPoolLength {
				break
			}
		}
	}
	return AccountEntropyPool(out), nil
}

// ParseAccountEntropyPool validates s and returns it lowercased.
func ParseAccountEntropyPool(s string) (AccountEntropyPool, error) {
	p := AccountEntropyPool(strings.ToLower(s))
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}

// Validate checks the length and alphabet of p.
func (p AccountEntropyPool) Validate() error {
	if len(p) != AccountEntropyPoolLength {
		return errors.Wrapf(ErrInvalidEntropyPool, "length %d", len(p))
	}
	for i := 0; i < len(p); i++ {
		if strings.IndexByte(entropyPoolAlphabet, p[i]) < 0 {
			return errors.Wrapf(ErrInvalidEntropyPool, "character at %d", i)
		}
	}
	return nil
}

// String returns the pool characters.
func (p AccountEntropyPool) String() string { return string(p) }

// MasterKey derives the account master key with HKDF-SHA256.
func (p AccountEntropyPool) MasterKey() MasterKey {
	var mk MasterKey
	r := hkdf.New(sha256.New, []byte(p), nil, []byte(entropyPoolMasterKeyInfo))
	// HKDF-SHA256 can emit up to 8160 bytes, so 32 never fails.
	_, _ = io.ReadFull(r, mk[:])
	return mk
}

// RootKey is one of the two representations the master key is derived from.
// The set of implementations is closed: EntropyPoolRootKey and
// MasterKeyRootKey.
type RootKey interface {
	// DeriveMasterKey returns the canonical 32-byte master key.
	DeriveMasterKey() MasterKey
	isRootKey()
}

// EntropyPoolRootKey holds an account entropy pool.
type EntropyPoolRootKey struct {
	Pool AccountEntropyPool
}

// MasterKeyRootKey holds a legacy raw master key.
type MasterKeyRootKey struct {
	Key MasterKey
}

// NewEntropyPoolRootKey validates pool and wraps it.
func NewEntropyPoolRootKey(pool AccountEntropyPool) (RootKey, error) {
	if err := pool.Validate(); err != nil {
		return nil, err
	}
	return EntropyPoolRootKey{Pool: pool}, nil
}

// NewMasterKeyRootKey wraps a legacy master key.
func NewMasterKeyRootKey(key MasterKey) RootKey { return MasterKeyRootKey{Key: key} }

// DeriveMasterKey runs the pool through HKDF.
func (k EntropyPoolRootKey) DeriveMasterKey() MasterKey { return k.Pool.MasterKey() }

// DeriveMasterKey returns the stored key unchanged.
func (k MasterKeyRootKey) DeriveMasterKey() MasterKey { return k.Key }

func (EntropyPoolRootKey) isRootKey() {}
func (MasterKeyRootKey) isRootKey()   {}

// ValidateRootKey rejects a nil root key and malformed pools.
func ValidateRootKey(k RootKey) error {
	switch v := k.(type) {
	case EntropyPoolRootKey:
		return v.Pool.Validate()
	case MasterKeyRootKey:
		return nil
	case nil:
		return errors.Wrap(ErrIncompleteProvisioning, "root key missing")
	default:
		return errors.Errorf("unknown root key type %T", k)
	}
}
