package deviceflow

import (
	"context"

	"github.com/wrale/oauth2-device-client/internal/clock"
	"github.com/wrale/oauth2-device-client/internal/httpwire"
	"github.com/wrale/oauth2-device-client/internal/validation"
)

// PollAccessToken asks the provider whether the user has approved req.
//
// It returns ErrNotYetDue before req.NextPollAt and ErrExpired after
// req.ExpiresAt, in both cases without touching the network. Otherwise
// NextPollAt is advanced by the poll interval before the request is sent,
// whatever its outcome. A nil error means creds now hold an access token,
// a refresh token and their expiry. Until the user acts the provider answers
// with a ProviderError such as authorization_pending; creds are left
// untouched on every failure.
func (c *Client) PollAccessToken(ctx context.Context, creds *Credentials, req *Request) error {
	if req == nil || req.deviceCode.IsEmpty() {
		return ErrNotStarted
	}

	now := c.clock.Now()
	if now < req.nextPollAt {
		return ErrNotYetDue
	}
	if now > req.expiresAt {
		return ErrExpired
	}
	req.nextPollAt = now + req.pollInterval

	var form httpwire.Form
	form.Add("client_id", creds.clientID).
		Add("client_secret", creds.clientSecret).
		Add("grant_type", c.grantType).
		Add(deviceCodeParam(c.grantType), req.deviceCode.String())

	c.logger.Debug().Str("endpoint", c.tokenEndpoint.String()).Msg("Polling for access token")

	f, err := c.post(ctx, c.tokenEndpoint, &form, "access_token", "refresh_token", "expires_in")
	if err != nil {
		return err
	}

	access := validation.NewBounded("access_token", validation.AccessTokenMax)
	if err := f.CopyString("access_token", &access); err != nil {
		return err
	}
	refresh := validation.NewBounded("refresh_token", validation.RefreshTokenMax)
	if err := f.CopyString("refresh_token", &refresh); err != nil {
		return err
	}
	expiresIn, err := f.Seconds("expires_in")
	if err != nil {
		return err
	}

	creds.accessToken = access
	creds.refreshToken = refresh
	creds.expiresAt = c.clock.Now() + clock.FromSeconds(expiresIn)

	c.logger.Debug().Uint64("expires_in", expiresIn).Msg("Device authorized")
	return nil
}

// RefreshAccessToken obtains a new access token with the stored refresh
// token. It returns ErrNotDue while the current access token has not
// expired; there is no early refresh. On success only the access token and
// its expiry change; the refresh token is kept.
func (c *Client) RefreshAccessToken(ctx context.Context, creds *Credentials) error {
	now := c.clock.Now()
	if now < creds.expiresAt {
		return ErrNotDue
	}
	if creds.refreshToken.IsEmpty() {
		return ErrNoRefreshToken
	}

	var form httpwire.Form
	form.Add("client_id", creds.clientID).
		Add("client_secret", creds.clientSecret).
		Add("refresh_token", creds.refreshToken.String()).
		Add("grant_type", grantTypeRefresh)

	c.logger.Debug().Str("endpoint", c.tokenEndpoint.String()).Msg("Refreshing access token")

	f, err := c.post(ctx, c.tokenEndpoint, &form, "access_token", "expires_in")
	if err != nil {
		return err
	}

	access := validation.NewBounded("access_token", validation.AccessTokenMax)
	if err := f.CopyString("access_token", &access); err != nil {
		return err
	}
	expiresIn, err := f.Seconds("expires_in")
	if err != nil {
		return err
	}

	creds.accessToken = access
	creds.expiresAt = c.clock.Now() + clock.FromSeconds(expiresIn)

	c.logger.Debug().Uint64("expires_in", expiresIn).Msg("Access token refreshed")
	return nil
}

// deviceCodeParam names the poll parameter carrying the device code. The
// RFC 8628 grant uses device_code; Google's legacy grant uses code.
func deviceCodeParam(grantType string) string {
	if grantType == GrantTypeDeviceCode {
		return "device_code"
	}
	return "code"
}
