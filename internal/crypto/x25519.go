package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/curve25519"

	"cipherlink/internal/domain"
)

// GenerateX25519 returns a fresh Curve25519 key pair.
// The private key is clamped per RFC 7748.
func GenerateX25519() (priv domain.X25519Private, pub domain.X25519Public, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return
	}
	clamp(&priv)
	pub, err = PublicFromPrivate(priv)
	return
}

// IdentityKeyPairFromPrivate completes an identity key pair from its
// private half.
func IdentityKeyPairFromPrivate(priv domain.X25519Private) (domain.IdentityKeyPair, error) {
	pub, err := PublicFromPrivate(priv)
	if err != nil {
		return domain.IdentityKeyPair{}, err
	}
	return domain.IdentityKeyPair{Public: pub, Private: priv}, nil
}

// GenerateIdentityKeyPair returns a fresh identity key pair.
func GenerateIdentityKeyPair() (domain.IdentityKeyPair, error) {
	priv, pub, err := GenerateX25519()
	if err != nil {
		return domain.IdentityKeyPair{}, err
	}
	return domain.IdentityKeyPair{Public: pub, Private: priv}, nil
}

// PublicFromPrivate computes the public key for priv.
func PublicFromPrivate(priv domain.X25519Private) (pub domain.X25519Public, err error) {
	pb, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return pub, err
	}
	copy(pub[:], pb)
	return pub, nil
}

// DH computes X25519 Diffie–Hellman. It fails on low-order peer keys.
func DH(priv domain.X25519Private, pub domain.X25519Public) (out [32]byte, err error) {
	secret, err := curve25519.X25519(priv.Slice(), pub.Slice())
	if err != nil {
		return out, err
	}
	copy(out[:], secret)
	Wipe(secret)
	return out, nil
}

func clamp(k *domain.X25519Private) {
	kb := k[:]
	kb[0] &= 248
	kb[31] &= 127
	kb[31] |= 64
}
