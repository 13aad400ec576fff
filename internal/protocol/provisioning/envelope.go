package provisioning

import (
	"crypto/cipher"
	"crypto/rand"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
)

const (
	ephemeralKeySize = 32
	nonceSize        = chacha20poly1305.NonceSize
	headerSize       = ephemeralKeySize + nonceSize

	// MinEnvelopeSize is the length of a sealed empty plaintext.
	MinEnvelopeSize = headerSize + chacha20poly1305.Overhead

	envelopeKeyInfo = "cipherlink provisioning envelope v1"
)

// Seal encrypts plaintext to recipient. The output is
//
//	ephemeralPublic(32) || nonce(12) || ciphertext || tag(16)
//
// with a key derived by HKDF-SHA256 from a fresh X25519 agreement, and both
// public keys bound in as associated data.
func Seal(plaintext []byte, recipient domain.X25519Public) ([]byte, error) {
	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, err
	}
	defer crypto.WipeKey(&ephPriv)

	aead, err := envelopeAEAD(ephPriv, recipient)
	if err != nil {
		return nil, errors.Wrap(ErrEncoding, err.Error())
	}

	out := make([]byte, headerSize, headerSize+len(plaintext)+aead.Overhead())
	copy(out, ephPub[:])
	if _, err := rand.Read(out[ephemeralKeySize:headerSize]); err != nil {
		return nil, err
	}
	return aead.Seal(out, out[ephemeralKeySize:headerSize], plaintext, associatedData(ephPub, recipient)), nil
}

// Open reverses Seal with the recipient's private key. Every failure is
// ErrDecryption: the envelope does not say which part was wrong.
func Open(envelope []byte, local domain.X25519Private) ([]byte, error) {
	if len(envelope) < MinEnvelopeSize {
		return nil, errors.Wrapf(ErrDecryption, "envelope is %d bytes", len(envelope))
	}
	var ephPub domain.X25519Public
	copy(ephPub[:], envelope[:ephemeralKeySize])
	nonce := envelope[ephemeralKeySize:headerSize]

	localPub, err := crypto.PublicFromPrivate(local)
	if err != nil {
		return nil, errors.Wrap(ErrDecryption, err.Error())
	}
	aead, err := envelopeAEAD(local, ephPub)
	if err != nil {
		return nil, errors.Wrap(ErrDecryption, err.Error())
	}
	pt, err := aead.Open(nil, nonce, envelope[headerSize:], associatedData(ephPub, localPub))
	if err != nil {
		return nil, ErrDecryption
	}
	return pt, nil
}

// Encode validates and serializes msg, then seals it to recipient.
func Encode(msg domain.ProvisioningMessage, recipient domain.X25519Public) ([]byte, error) {
	plain, err := Marshal(msg)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(plain)
	return Seal(plain, recipient)
}

// Decode opens ciphertext with local and parses the message inside.
func Decode(ciphertext []byte, local domain.X25519Private) (domain.ProvisioningMessage, error) {
	plain, err := Open(ciphertext, local)
	if err != nil {
		return domain.ProvisioningMessage{}, err
	}
	defer crypto.Wipe(plain)
	return Unmarshal(plain)
}

func envelopeAEAD(priv domain.X25519Private, peer domain.X25519Public) (cipher.AEAD, error) {
	shared, err := crypto.DH(priv, peer)
	if err != nil {
		return nil, err
	}
	defer crypto.WipeKey(&shared)
	key, err := crypto.HKDF(shared[:], nil, []byte(envelopeKeyInfo), chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)
	return chacha20poly1305.New(key)
}

func associatedData(ephPub, recipient domain.X25519Public) []byte {
	ad := make([]byte, 0, 2*ephemeralKeySize)
	ad = append(ad, ephPub[:]...)
	return append(ad, recipient[:]...)
}
