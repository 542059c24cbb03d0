package deviceflow

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// TokenSource adapts creds to oauth2.TokenSource so authorized credentials
// can drive oauth2.NewClient. Each Token call refreshes when the access
// token has expired. Like the rest of the package it is not safe for
// concurrent use; wrap it with oauth2.ReuseTokenSource if needed.
func (c *Client) TokenSource(ctx context.Context, creds *Credentials) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, client: c, creds: creds}
}

type tokenSource struct {
	ctx    context.Context
	client *Client
	creds  *Credentials
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	if err := ts.client.RefreshAccessToken(ts.ctx, ts.creds); err != nil && !errors.Is(err, ErrNotDue) {
		return nil, err
	}

	now := ts.client.clock.Now()
	var remaining time.Duration
	if exp := ts.creds.expiresAt; exp > now {
		remaining = (exp - now).Duration()
	}
	return &oauth2.Token{
		AccessToken:  ts.creds.AccessToken(),
		TokenType:    "Bearer",
		RefreshToken: ts.creds.RefreshToken(),
		Expiry:       time.Now().Add(remaining),
	}, nil
}
