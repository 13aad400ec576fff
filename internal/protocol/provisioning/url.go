package provisioning

import (
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"cipherlink/internal/domain"
)

const (
	urlScheme = "cipherlink"
	urlHost   = "linkdevice"
)

// FormatURL renders u as
//
//	cipherlink://linkdevice?capabilities=<csv>&pub_key=<base64>&uuid=<id>
//
// The public key is unpadded standard base64, query-escaped.
func FormatURL(u domain.ProvisioningURL) string {
	q := url.Values{}
	q.Set("uuid", u.EphemeralDeviceID.String())
	q.Set("pub_key", base64.RawStdEncoding.EncodeToString(u.PublicKey[:]))
	if len(u.Capabilities) > 0 {
		caps := make([]string, len(u.Capabilities))
		for i, c := range u.Capabilities {
			caps[i] = string(c)
		}
		q.Set("capabilities", strings.Join(caps, ","))
	}
	return (&url.URL{Scheme: urlScheme, Host: urlHost, RawQuery: q.Encode()}).String()
}

// ParseURL is the inverse of FormatURL. Padded base64 keys are accepted too.
func ParseURL(raw string) (domain.ProvisioningURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return domain.ProvisioningURL{}, errors.Wrap(ErrInvalidURL, err.Error())
	}
	if u.Scheme != urlScheme || u.Host != urlHost {
		return domain.ProvisioningURL{}, errors.Wrapf(ErrInvalidURL, "unexpected target %s://%s", u.Scheme, u.Host)
	}
	q := u.Query()

	id := q.Get("uuid")
	if id == "" {
		return domain.ProvisioningURL{}, errors.Wrap(ErrInvalidURL, "uuid missing")
	}
	key, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(q.Get("pub_key"), "="))
	if err != nil {
		return domain.ProvisioningURL{}, errors.Wrapf(ErrInvalidURL, "pub_key: %v", err)
	}
	if len(key) != ephemeralKeySize {
		return domain.ProvisioningURL{}, errors.Wrapf(ErrInvalidURL, "pub_key is %d bytes", len(key))
	}

	out := domain.ProvisioningURL{EphemeralDeviceID: domain.EphemeralDeviceID(id)}
	copy(out.PublicKey[:], key)
	if caps := q.Get("capabilities"); caps != "" {
		for _, c := range strings.Split(caps, ",") {
			if c = strings.TrimSpace(c); c != "" {
				out.Capabilities = append(out.Capabilities, domain.Capability(c))
			}
		}
	}
	return out, nil
}
