package provisioning

import "github.com/pkg/errors"

var (
	// ErrEncoding is returned by Encode and Marshal when a required field is
	// structurally invalid. No encryption work has happened at that point.
	ErrEncoding = errors.New("invalid provisioning message")

	// ErrDecryption is returned by Open and Decode when the envelope is too
	// short, carries a bad ephemeral key, or fails authentication.
	ErrDecryption = errors.New("provisioning envelope decryption failed")

	// ErrMalformedMessage is returned by Unmarshal and Decode for plaintext
	// that does not describe a valid message.
	ErrMalformedMessage = errors.New("malformed provisioning message")

	// ErrUnsupportedVersion is a malformed message whose version is newer
	// than CurrentVersion.
	ErrUnsupportedVersion = errors.WithMessage(ErrMalformedMessage, "unsupported version")

	// ErrInvalidURL is returned by ParseURL.
	ErrInvalidURL = errors.New("invalid provisioning url")
)
