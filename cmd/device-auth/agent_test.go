package main

import (
	"context"
	"crypto/tls"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wrale/oauth2-device-client/internal/credstore"
	"github.com/wrale/oauth2-device-client/internal/deviceflow"
	"github.com/wrale/oauth2-device-client/internal/httpwire"
	"github.com/wrale/oauth2-device-client/internal/providertest"
	"github.com/wrale/oauth2-device-client/internal/status"
	"github.com/wrale/oauth2-device-client/internal/transport"
)

const (
	testClientID     = "1234-abcd.apps.googleusercontent.com"
	testClientSecret = "s3cr3t"
	testOffset       = 32
)

func newAgent(t *testing.T, p *providertest.Provider, store credstore.Store) *agent {
	t.Helper()

	host, port := p.Addr()
	dialer := &transport.TLSDialer{Config: &tls.Config{RootCAs: p.RootCAs()}}
	client := deviceflow.NewClient(httpwire.NewExchanger(dialer),
		deviceflow.WithAuthEndpoint(deviceflow.Endpoint{Host: host, Port: port, Path: providertest.DeviceCodePath}),
		deviceflow.WithTokenEndpoint(deviceflow.Endpoint{Host: host, Port: port, Path: providertest.TokenPath}),
	)
	return &agent{
		client:  client,
		creds:   deviceflow.NewCredentials(testClientID, testClientSecret),
		store:   store,
		offset:  testOffset,
		scope:   "https://www.googleapis.com/auth/calendar.readonly",
		tracker: status.NewTracker(),
		log:     zerolog.Nop(),
		sleep:   sleepContext,
	}
}

// approveAll plays the user, approving every code the provider hands out
func approveAll(ctx context.Context, p *providertest.Provider) {
	go func() {
		for ctx.Err() == nil {
			for _, code := range p.PendingUserCodes() {
				p.Approve(code)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()
}

// stopWhenIdle ends run once the agent settles into waiting for expiry
func stopWhenIdle(a *agent, cancel context.CancelFunc) {
	a.sleep = func(ctx context.Context, d time.Duration) error {
		if d >= time.Minute {
			cancel()
			return context.Canceled
		}
		return sleepContext(ctx, d)
	}
}

func storedToken(t *testing.T, store credstore.Store) string {
	t.Helper()
	creds := deviceflow.NewCredentials(testClientID, testClientSecret)
	require.NoError(t, credstore.LoadRefreshToken(store, testOffset, creds))
	return creds.RefreshToken()
}

func TestAgentAuthorizesAndPersists(t *testing.T) {
	p := providertest.New(testClientID, testClientSecret, providertest.WithInterval(0))
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	approveAll(ctx, p)

	store := credstore.NewMemoryStore(credstore.DefaultCapacity)
	a := newAgent(t, p, store)
	require.NoError(t, a.authorize(ctx))

	require.Equal(t, deviceflow.Authorized, a.creds.State(a.client.Now()))
	require.Equal(t, a.creds.RefreshToken(), storedToken(t, store))
	require.Equal(t, "authorized", a.tracker.Snapshot().State)
}

func TestAgentRestoresAndRefreshes(t *testing.T) {
	p := providertest.New(testClientID, testClientSecret, providertest.WithInterval(0))
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	approveAll(ctx, p)

	store := credstore.NewMemoryStore(credstore.DefaultCapacity)
	require.NoError(t, newAgent(t, p, store).authorize(ctx))
	refresh := storedToken(t, store)
	polls := p.Requests(providertest.DeviceCodePath)

	runCtx, stop := context.WithCancel(ctx)
	a := newAgent(t, p, store)
	stopWhenIdle(a, stop)

	err := a.run(runCtx)
	require.True(t, errors.Is(err, context.Canceled), "run() error = %v", err)
	require.Equal(t, polls, p.Requests(providertest.DeviceCodePath), "restored agent must not request a new device code")
	require.Equal(t, refresh, a.creds.RefreshToken())
	require.NotEmpty(t, a.creds.AccessToken())
}

func TestAgentReauthorizesAfterRevocation(t *testing.T) {
	p := providertest.New(testClientID, testClientSecret, providertest.WithInterval(0))
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	approveAll(ctx, p)

	store := credstore.NewMemoryStore(credstore.DefaultCapacity)
	require.NoError(t, newAgent(t, p, store).authorize(ctx))
	revoked := storedToken(t, store)
	p.Revoke(revoked)

	runCtx, stop := context.WithCancel(ctx)
	a := newAgent(t, p, store)
	stopWhenIdle(a, stop)

	err := a.run(runCtx)
	require.True(t, errors.Is(err, context.Canceled), "run() error = %v", err)
	require.Equal(t, deviceflow.Authorized, a.creds.State(a.client.Now()))

	fresh := storedToken(t, store)
	require.NotEqual(t, revoked, fresh)
	require.Equal(t, a.creds.RefreshToken(), fresh)
}

func TestAgentStopsWhenDenied(t *testing.T) {
	p := providertest.New(testClientID, testClientSecret, providertest.WithInterval(0))
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go func() {
		for ctx.Err() == nil {
			for _, code := range p.PendingUserCodes() {
				p.Deny(code)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	store := credstore.NewMemoryStore(credstore.DefaultCapacity)
	a := newAgent(t, p, store)
	err := a.authorize(ctx)
	require.True(t, deviceflow.ProviderErrorIs(err, deviceflow.ErrorCodeAccessDenied), "authorize() error = %v", err)
	require.NotEmpty(t, a.tracker.Snapshot().LastError)

	empty := deviceflow.NewCredentials(testClientID, testClientSecret)
	require.ErrorIs(t, credstore.LoadRefreshToken(store, testOffset, empty), credstore.ErrNoRecord)
}

func TestAgentSpacesRefreshOfExpiredTokens(t *testing.T) {
	p := providertest.New(testClientID, testClientSecret, providertest.WithInterval(0), providertest.WithTokenTTL(0))
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	approveAll(ctx, p)

	a := newAgent(t, p, credstore.NewMemoryStore(credstore.DefaultCapacity))
	require.NoError(t, a.authorize(ctx))
	polls := p.Requests(providertest.TokenPath)

	var waits []time.Duration
	a.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) == 3 {
			return context.Canceled
		}
		return nil
	}

	err := a.maintain(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []time.Duration{minRefreshWait, minRefreshWait, minRefreshWait}, waits)
	require.Equal(t, polls+3, p.Requests(providertest.TokenPath), "one refresh per wait")
}
