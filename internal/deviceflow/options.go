package deviceflow

import (
	"github.com/rs/zerolog"

	"github.com/wrale/oauth2-device-client/internal/clock"
)

// Option configures the device flow client
type Option func(*Client)

// WithClock sets the tick source used for all timing gates
func WithClock(c clock.Clock) Option {
	return func(cl *Client) {
		cl.clock = c
	}
}

// WithAuthEndpoint overrides where device and user codes are requested
func WithAuthEndpoint(e Endpoint) Option {
	return func(cl *Client) {
		cl.authEndpoint = e
	}
}

// WithTokenEndpoint overrides where tokens are polled for and refreshed
func WithTokenEndpoint(e Endpoint) Option {
	return func(cl *Client) {
		cl.tokenEndpoint = e
	}
}

// WithGrantType overrides the grant_type sent when polling
func WithGrantType(grantType string) Option {
	return func(cl *Client) {
		cl.grantType = grantType
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}
