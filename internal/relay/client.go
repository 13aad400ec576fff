package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"go.uber.org/ratelimit"

	"cipherlink/internal/domain"
)

// StatusError is a non-2xx reply from the coordination service. It matches
// domain.ErrTransport under errors.Is, and domain.ErrNotFound too when the
// status is 404.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("relay %s %s: %d %s", e.Method, e.URL, e.Status, http.StatusText(e.Status))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case domain.ErrTransport:
		return true
	case domain.ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// HTTPClient talks JSON over HTTP to the coordination service.
type HTTPClient struct {
	base    string
	http    *http.Client
	pollPer int
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithPollRate sets how many mailbox polls per second
// WaitForProvisioningMessage may issue.
func WithPollRate(perSecond int) ClientOption {
	return func(c *HTTPClient) {
		if perSecond > 0 {
			c.pollPer = perSecond
		}
	}
}

// NewHTTP returns a client for the service at base. A nil hc uses
// http.DefaultClient.
func NewHTTP(base string, hc *http.Client, opts ...ClientOption) *HTTPClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	c := &HTTPClient{base: strings.TrimRight(base, "/"), http: hc, pollPer: 2}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestProvisioningCode asks for a single-use provisioning code.
func (c *HTTPClient) RequestProvisioningCode(ctx context.Context) (domain.ProvisioningCode, error) {
	var out domain.ProvisioningCode
	if _, err := c.do(ctx, http.MethodGet, "/v1/devices/provisioning/code", nil, &out); err != nil {
		return domain.ProvisioningCode{}, err
	}
	return out, nil
}

// SendProvisioningMessage drops a sealed provisioning message into the
// destination mailbox.
func (c *HTTPClient) SendProvisioningMessage(
	ctx context.Context,
	destination domain.EphemeralDeviceID,
	body []byte,
) error {
	_, err := c.do(ctx, http.MethodPut, "/v1/provisioning/"+url.PathEscape(destination.String()),
		provisioningMessage{Body: body}, nil)
	return err
}

// OpenProvisioningChannel creates an ephemeral mailbox.
func (c *HTTPClient) OpenProvisioningChannel(ctx context.Context) (domain.EphemeralDeviceID, error) {
	var out provisioningChannel
	if _, err := c.do(ctx, http.MethodPost, "/v1/provisioning", nil, &out); err != nil {
		return "", err
	}
	if out.UUID == "" {
		return "", errors.Wrap(domain.ErrTransport, "relay returned an empty mailbox id")
	}
	return out.UUID, nil
}

// WaitForProvisioningMessage polls the mailbox until a message arrives or
// ctx ends. Polls are paced by the configured rate.
func (c *HTTPClient) WaitForProvisioningMessage(
	ctx context.Context,
	id domain.EphemeralDeviceID,
) ([]byte, error) {
	limiter := ratelimit.New(c.pollPer)
	path := "/v1/provisioning/" + url.PathEscape(id.String())
	for {
		limiter.Take()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var out provisioningMessage
		status, err := c.do(ctx, http.MethodGet, path, nil, &out)
		if err != nil {
			return nil, err
		}
		if status == http.StatusOK {
			return out.Body, nil
		}
		jww.TRACE.Printf("mailbox %s still empty", id)
	}
}

// LinkDevice redeems a provisioning code for a device id.
func (c *HTTPClient) LinkDevice(
	ctx context.Context,
	req domain.DeviceLinkRequest,
) (domain.DeviceLinkResponse, error) {
	var out domain.DeviceLinkResponse
	if _, err := c.do(ctx, http.MethodPut, "/v1/devices/link", req, &out); err != nil {
		return domain.DeviceLinkResponse{}, err
	}
	return out, nil
}

// UploadPreKeys publishes a pre-key bundle for one identity role.
func (c *HTTPClient) UploadPreKeys(ctx context.Context, bundle domain.PreKeyBundle) error {
	_, err := c.do(ctx, http.MethodPut, "/v1/keys/"+url.PathEscape(bundle.Role.String()), bundle, nil)
	return err
}

// do sends in (if non-nil) as JSON and decodes a 200 reply into out (if
// non-nil). Network failures and non-2xx replies match domain.ErrTransport;
// context errors are returned as they are.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return 0, errors.Wrap(err, "encode request")
		}
		body = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, errors.Wrapf(domain.ErrTransport, "relay %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &StatusError{
			Method: method,
			URL:    path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(msg)),
		}
	}
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, errors.Wrapf(domain.ErrTransport, "decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

var _ domain.RelayClient = (*HTTPClient)(nil)
