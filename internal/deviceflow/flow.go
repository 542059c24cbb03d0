// Package deviceflow implements the client side of the OAuth 2.0 Device
// Authorization Grant (RFC 8628) against Google's device endpoints
package deviceflow

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wrale/oauth2-device-client/internal/clock"
	"github.com/wrale/oauth2-device-client/internal/httpwire"
	"github.com/wrale/oauth2-device-client/internal/response"
)

const (
	// GrantTypeDeviceLegacy is the grant Google pairs with the "code" poll parameter
	GrantTypeDeviceLegacy = "http://oauth.net/grant_type/device/1.0"

	// GrantTypeDeviceCode is the RFC 8628 section 3.4 grant URN
	GrantTypeDeviceCode = "urn:ietf:params:oauth:grant-type:device_code"

	grantTypeRefresh = "refresh_token"
)

// Endpoint is an HTTPS endpoint reached through the raw exchange
type Endpoint struct {
	Host string
	Port int
	Path string
}

func (e Endpoint) String() string {
	return fmt.Sprintf("https://%s:%d%s", e.Host, e.Port, e.Path)
}

var (
	// DefaultAuthEndpoint issues device and user codes
	DefaultAuthEndpoint = Endpoint{Host: "accounts.google.com", Port: 443, Path: "/o/oauth2/device/code"}

	// DefaultTokenEndpoint issues and refreshes tokens
	DefaultTokenEndpoint = Endpoint{Host: "www.googleapis.com", Port: 443, Path: "/oauth2/v4/token"}
)

// Exchanger performs one form POST and returns the decoded response body
type Exchanger interface {
	Exchange(ctx context.Context, host string, port int, path string, form []byte) ([]byte, error)
}

var _ Exchanger = (*httpwire.Exchanger)(nil)

// Client drives the device flow. It holds no token state: Credentials and
// Request values are passed to each operation, and a single goroutine is
// expected to drive any one of them.
type Client struct {
	exchanger     Exchanger
	clock         clock.Clock
	authEndpoint  Endpoint
	tokenEndpoint Endpoint
	grantType     string
	logger        zerolog.Logger
}

// NewClient creates a device flow client sending requests through ex
func NewClient(ex Exchanger, opts ...Option) *Client {
	c := &Client{
		exchanger:     ex,
		clock:         clock.NewSystem(),
		authEndpoint:  DefaultAuthEndpoint,
		tokenEndpoint: DefaultTokenEndpoint,
		grantType:     GrantTypeDeviceLegacy,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the client's current tick
func (c *Client) Now() clock.Ticks {
	return c.clock.Now()
}

// RequestDeviceCode starts a device authorization for scope. The returned
// request is in PendingUserAction: show its UserCode and VerificationURL to
// the user, then call PollAccessToken once NextPollAt has passed.
func (c *Client) RequestDeviceCode(ctx context.Context, creds *Credentials, scope string) (*Request, error) {
	var form httpwire.Form
	form.Add("client_id", creds.clientID).
		Add("scope", scope)

	c.logger.Debug().Str("endpoint", c.authEndpoint.String()).Msg("Requesting device code")

	f, err := c.post(ctx, c.authEndpoint, &form,
		"device_code", "user_code", "expires_in", "interval")
	if err != nil {
		return nil, err
	}

	// Google names the field verification_url, RFC 8628 verification_uri
	urlKey, ok := f.First("verification_url", "verification_uri")
	if !ok {
		return nil, &MissingFieldError{Name: "verification_url"}
	}

	req := newRequest()
	if err := f.CopyString("device_code", &req.deviceCode); err != nil {
		return nil, err
	}
	if err := f.CopyString("user_code", &req.userCode); err != nil {
		return nil, err
	}
	if err := f.CopyString(urlKey, &req.verificationURL); err != nil {
		return nil, err
	}
	expiresIn, err := f.Seconds("expires_in")
	if err != nil {
		return nil, err
	}
	interval, err := f.Seconds("interval")
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	req.expiresAt = now + clock.FromSeconds(expiresIn)
	req.pollInterval = clock.FromSeconds(interval)
	req.nextPollAt = now + req.pollInterval

	c.logger.Debug().
		Uint64("expires_in", expiresIn).
		Uint64("interval", interval).
		Msg("Device code issued")

	return req, nil
}

// post sends form to e and decodes the response requiring the given keys
func (c *Client) post(ctx context.Context, e Endpoint, form *httpwire.Form, required ...string) (*response.Fields, error) {
	body, err := c.exchanger.Exchange(ctx, e.Host, e.Port, e.Path, form.Encode())
	if err != nil {
		return nil, fmt.Errorf("exchanging with %s: %w", e.Host, err)
	}
	f, err := response.Decode(body, required...)
	if err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", e.Host, err)
	}
	return f, nil
}
