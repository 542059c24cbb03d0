package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wrale/oauth2-device-client/internal/clock"
	"github.com/wrale/oauth2-device-client/internal/credstore"
	"github.com/wrale/oauth2-device-client/internal/deviceflow"
	"github.com/wrale/oauth2-device-client/internal/status"
)

const (
	// slowDownStep is added to the wait after a slow_down answer
	slowDownStep = 5 * time.Second

	// retryDelay spaces attempts after transport or decoding failures
	retryDelay = 10 * time.Second

	// minRefreshWait spaces refreshes when the provider grants tokens that
	// are already expired
	minRefreshWait = retryDelay
)

// errReauthorize means the refresh token was rejected and the device must
// be authorized again
var errReauthorize = errors.New("refresh token rejected")

// agent keeps a device authorized: it restores the refresh token, runs the
// device flow when there is none, persists what it obtains and refreshes
// the access token as it expires
type agent struct {
	client  *deviceflow.Client
	creds   *deviceflow.Credentials
	store   credstore.Store
	offset  int64
	scope   string
	tracker *status.Tracker
	log     zerolog.Logger

	// sleep blocks for d or until ctx is done
	sleep func(ctx context.Context, d time.Duration) error
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// until returns the wait before tick target, zero if it has passed
func (a *agent) until(target clock.Ticks) time.Duration {
	now := a.client.Now()
	if target <= now {
		return 0
	}
	return (target - now).Duration()
}

// run blocks until ctx is cancelled or authorization fails permanently
func (a *agent) run(ctx context.Context) error {
	if err := credstore.LoadRefreshToken(a.store, a.offset, a.creds); err != nil {
		if !errors.Is(err, credstore.ErrNoRecord) {
			a.log.Warn().Err(err).Msg("Ignoring stored refresh token")
		}
	} else {
		a.log.Info().Msg("Restored refresh token")
	}

	for {
		if a.creds.RefreshToken() == "" {
			if err := a.authorize(ctx); err != nil {
				return err
			}
		}

		err := a.maintain(ctx)
		if !errors.Is(err, errReauthorize) {
			return err
		}
		a.log.Warn().Msg("Refresh token rejected, starting device authorization again")
		a.creds.Reset()
		if err := credstore.SaveRefreshToken(a.store, a.offset, a.creds); err != nil {
			return err
		}
	}
}

// authorize runs the device flow until a token is issued. Expired requests
// are restarted; a user refusal ends the flow.
func (a *agent) authorize(ctx context.Context) error {
	for {
		req, err := a.client.RequestDeviceCode(ctx, a.creds, a.scope)
		if err != nil {
			if isPermanent(err) {
				return fmt.Errorf("requesting device code: %w", err)
			}
			a.log.Warn().Err(err).Msg("Device code request failed, retrying")
			a.tracker.SetError(err)
			if err := a.sleep(ctx, retryDelay); err != nil {
				return err
			}
			continue
		}

		a.log.Info().
			Str("verification_url", req.VerificationURL()).
			Str("user_code", req.UserCode()).
			Msg("Enter the code at the verification URL to authorize this device")
		a.tracker.SetError(nil)
		a.tracker.Observe(a.creds, req, a.client.Now())

		done, err := a.poll(ctx, req)
		if err != nil {
			return err
		}
		if done {
			return credstore.SaveRefreshToken(a.store, a.offset, a.creds)
		}
		a.log.Info().Msg("Device code expired, requesting a new one")
	}
}

// poll waits out each poll interval until req is authorized or expires
func (a *agent) poll(ctx context.Context, req *deviceflow.Request) (bool, error) {
	var extra time.Duration
	for {
		if err := a.sleep(ctx, a.until(req.NextPollAt())+extra); err != nil {
			return false, err
		}

		err := a.client.PollAccessToken(ctx, a.creds, req)
		a.tracker.Observe(a.creds, req, a.client.Now())
		switch {
		case err == nil:
			a.tracker.SetError(nil)
			a.log.Info().Msg("Device authorized")
			return true, nil
		case errors.Is(err, deviceflow.ErrExpired), deviceflow.ProviderErrorIs(err, deviceflow.ErrorCodeExpiredToken):
			return false, nil
		case deviceflow.IsTimingGate(err), deviceflow.IsAuthorizationPending(err):
		case deviceflow.IsSlowDown(err):
			extra += slowDownStep
			a.log.Debug().Dur("extra_wait", extra).Msg("Provider asked to slow down")
		case isPermanent(err):
			a.tracker.SetError(err)
			return false, fmt.Errorf("polling for access token: %w", err)
		default:
			a.tracker.SetError(err)
			a.log.Warn().Err(err).Msg("Poll failed, will retry at next interval")
		}
	}
}

// maintain refreshes the access token each time it expires
func (a *agent) maintain(ctx context.Context) error {
	ts := a.client.TokenSource(ctx, a.creds)
	for {
		tok, err := ts.Token()
		a.tracker.Observe(a.creds, nil, a.client.Now())
		switch {
		case err == nil:
			a.tracker.SetError(nil)
			a.log.Info().Time("expiry", tok.Expiry).Msg("Access token valid")
			if err := a.sleep(ctx, max(a.until(a.creds.ExpiresAt()), minRefreshWait)); err != nil {
				return err
			}
		case deviceflow.ProviderErrorIs(err, deviceflow.ErrorCodeInvalidGrant):
			a.tracker.SetError(err)
			return errReauthorize
		case isPermanent(err):
			a.tracker.SetError(err)
			return fmt.Errorf("refreshing access token: %w", err)
		default:
			a.tracker.SetError(err)
			a.log.Warn().Err(err).Msg("Refresh failed, retrying")
			if err := a.sleep(ctx, retryDelay); err != nil {
				return err
			}
		}
	}
}

// isPermanent reports failures retrying cannot fix
func isPermanent(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return true
	case deviceflow.ProviderErrorIs(err, deviceflow.ErrorCodeAccessDenied),
		deviceflow.ProviderErrorIs(err, deviceflow.ErrorCodeInvalidClient),
		deviceflow.ProviderErrorIs(err, deviceflow.ErrorCodeInvalidScope):
		return true
	}
	return false
}
