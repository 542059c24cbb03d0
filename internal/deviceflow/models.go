package deviceflow

import (
	"github.com/wrale/oauth2-device-client/internal/clock"
	"github.com/wrale/oauth2-device-client/internal/validation"
)

// State is a position in the device flow lifecycle
type State int

const (
	Unstarted State = iota
	PendingUserAction
	Authorized
	Expired
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case PendingUserAction:
		return "pending_user_action"
	case Authorized:
		return "authorized"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Request is a single device authorization attempt. It is populated once by
// RequestDeviceCode and afterwards only NextPollAt changes, advanced by each
// poll that passes the timing gates. Discard it once a token is obtained.
type Request struct {
	// Identifies this device to the provider
	deviceCode validation.Bounded

	// Case-sensitive code the user enters at the verification URL
	userCode validation.Bounded

	verificationURL validation.Bounded

	expiresAt    clock.Ticks
	nextPollAt   clock.Ticks
	pollInterval clock.Ticks
}

func newRequest() *Request {
	return &Request{
		deviceCode:      validation.NewBounded("device_code", validation.DeviceCodeMax),
		userCode:        validation.NewBounded("user_code", validation.UserCodeMax),
		verificationURL: validation.NewBounded("verification_url", validation.VerificationURLMax),
	}
}

// DeviceCode returns the secret code presented when polling
func (r *Request) DeviceCode() string { return r.deviceCode.String() }

// UserCode returns the code to show the user
func (r *Request) UserCode() string { return r.userCode.String() }

// VerificationURL returns where the user enters the user code
func (r *Request) VerificationURL() string { return r.verificationURL.String() }

// ExpiresAt returns the tick after which the request is void
func (r *Request) ExpiresAt() clock.Ticks { return r.expiresAt }

// NextPollAt returns the tick before which polling must not happen
func (r *Request) NextPollAt() clock.Ticks { return r.nextPollAt }

// PollInterval returns the provider-mandated spacing between polls
func (r *Request) PollInterval() clock.Ticks { return r.pollInterval }

// State reports Unstarted, PendingUserAction or, once past ExpiresAt, Expired
func (r *Request) State(now clock.Ticks) State {
	switch {
	case r == nil || r.deviceCode.IsEmpty():
		return Unstarted
	case now > r.expiresAt:
		return Expired
	default:
		return PendingUserAction
	}
}

// Credentials is the long-lived token state of one OAuth client
type Credentials struct {
	clientID     string
	clientSecret string

	// Used for API calls until ExpiresAt
	accessToken validation.Bounded

	// Used only to obtain new access tokens
	refreshToken validation.Bounded

	expiresAt clock.Ticks
}

// NewCredentials creates empty credentials for the given OAuth client
func NewCredentials(clientID, clientSecret string) *Credentials {
	return &Credentials{
		clientID:     clientID,
		clientSecret: clientSecret,
		accessToken:  validation.NewBounded("access_token", validation.AccessTokenMax),
		refreshToken: validation.NewBounded("refresh_token", validation.RefreshTokenMax),
	}
}

// ClientID returns the OAuth client identifier
func (c *Credentials) ClientID() string { return c.clientID }

// AccessToken returns the current access token, empty until authorized
func (c *Credentials) AccessToken() string { return c.accessToken.String() }

// RefreshToken returns the refresh token, empty until authorized or restored
func (c *Credentials) RefreshToken() string { return c.refreshToken.String() }

// ExpiresAt returns the tick at which the access token stops being usable
func (c *Credentials) ExpiresAt() clock.Ticks { return c.expiresAt }

// SetRefreshToken installs a refresh token restored from storage. The access
// token is cleared and marked expired so the next refresh runs immediately.
func (c *Credentials) SetRefreshToken(token string) error {
	if err := c.refreshToken.Set(token); err != nil {
		return err
	}
	c.accessToken.Clear()
	c.expiresAt = 0
	return nil
}

// Reset discards all tokens, returning the credentials to Unstarted
func (c *Credentials) Reset() {
	c.accessToken.Clear()
	c.refreshToken.Clear()
	c.expiresAt = 0
}

// State reports Unstarted, Authorized or Expired
func (c *Credentials) State(now clock.Ticks) State {
	switch {
	case c.accessToken.IsEmpty() && c.refreshToken.IsEmpty():
		return Unstarted
	case c.accessToken.IsEmpty() || now >= c.expiresAt:
		return Expired
	default:
		return Authorized
	}
}
