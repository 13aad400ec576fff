package types

import (
	"crypto/subtle"

	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"
)

// IdentityRole selects which stable identifier an identity key belongs to.
type IdentityRole string

const (
	RoleACI IdentityRole = "aci"
	RolePNI IdentityRole = "pni"
)

// IdentityRoles lists every role in a fixed order.
var IdentityRoles = []IdentityRole{RoleACI, RolePNI}

// ParseIdentityRole parses "aci" or "pni".
func ParseIdentityRole(s string) (IdentityRole, error) {
	switch r := IdentityRole(s); r {
	case RoleACI, RolePNI:
		return r, nil
	}
	return "", errors.Wrapf(ErrInvalidIdentityRole, "%q", s)
}

// String returns the string form of the role.
func (r IdentityRole) String() string { return string(r) }

// IdentityKeyPair is a long-term X25519 identity key for one role.
type IdentityKeyPair struct {
	Public  X25519Public  `json:"public"`
	Private X25519Private `json:"private"`
}

// Validate checks that Public is the public half of Private.
func (kp IdentityKeyPair) Validate() error {
	pub, err := curve25519.X25519(kp.Private.Slice(), curve25519.Basepoint)
	if err != nil {
		return errors.Wrap(ErrIdentityKeyMismatch, err.Error())
	}
	if subtle.ConstantTimeCompare(pub, kp.Public.Slice()) != 1 {
		return ErrIdentityKeyMismatch
	}
	return nil
}
