package provisioning

import (
	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
)

const peerExtraKeyInfo = "cipherlink peer extra key v1"

// DerivePeerExtraPublicKey derives the public key the primary attests to
// its new devices. It is a deterministic function of the ACI identity
// private key, so every device of the account can recompute it.
func DerivePeerExtraPublicKey(aciPrivate domain.X25519Private) ([]byte, error) {
	seed, err := crypto.HKDF(aciPrivate.Slice(), nil, []byte(peerExtraKeyInfo), 32)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(seed)

	var priv domain.X25519Private
	copy(priv[:], seed)
	defer crypto.WipeKey(&priv)
	pub, err := crypto.PublicFromPrivate(priv)
	if err != nil {
		return nil, err
	}
	return pub[:], nil
}
