package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"cipherlink/internal/domain"
)

const signingKeyInfo = "cipherlink identity signing key"

// GenerateEd25519 returns a new Ed25519 signing key pair.
func GenerateEd25519() (priv domain.Ed25519Private, pub domain.Ed25519Public, err error) {
	pk, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return priv, pub, err
	}
	copy(priv[:], sk)
	copy(pub[:], pk)
	return priv, pub, nil
}

// SigningKeyFromIdentity deterministically derives the Ed25519 key that signs
// pre-keys for an identity. Every device holding the identity private key
// derives the same signing key.
func SigningKeyFromIdentity(
	identity domain.X25519Private,
) (priv domain.Ed25519Private, pub domain.Ed25519Public, err error) {
	seed, err := HKDF(identity.Slice(), nil, []byte(signingKeyInfo), ed25519.SeedSize)
	if err != nil {
		return priv, pub, err
	}
	defer Wipe(seed)
	sk := ed25519.NewKeyFromSeed(seed)
	copy(priv[:], sk)
	copy(pub[:], sk.Public().(ed25519.PublicKey))
	Wipe(sk)
	return priv, pub, nil
}

// SignEd25519 signs msg with priv and returns the signature.
func SignEd25519(priv domain.Ed25519Private, msg []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(priv[:]), msg)
}

// VerifyEd25519 verifies sig over msg with pub.
func VerifyEd25519(pub domain.Ed25519Public, msg, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig)
}
