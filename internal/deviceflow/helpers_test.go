package deviceflow

import (
	"bytes"
	"net/url"
	"testing"

	"github.com/wrale/oauth2-device-client/internal/clock"
	"github.com/wrale/oauth2-device-client/internal/httpwire"
	"github.com/wrale/oauth2-device-client/internal/transport/transporttest"
)

const (
	testClientID     = "1234-abcd.apps.googleusercontent.com"
	testClientSecret = "s3cr3t"
	testStart        = clock.Ticks(10_000)
)

// newTestClient wires a client to a scripted transport. Each body is served
// as one chunked 200 response, in order, one per dial.
func newTestClient(t *testing.T, bodies ...string) (*Client, *transporttest.Dialer, *clock.Manual) {
	t.Helper()

	clk := clock.NewManual(testStart)
	dialer := &transporttest.Dialer{Clock: clk, IdleStep: 1}
	for _, b := range bodies {
		dialer.Respond(transporttest.ChunkedResponse(200, "OK", b))
	}
	ex := httpwire.NewExchanger(dialer, httpwire.WithClock(clk))
	return NewClient(ex, WithClock(clk)), dialer, clk
}

// sentForm extracts the form fields of a recorded request
func sentForm(t *testing.T, dial *transporttest.Dial) url.Values {
	t.Helper()

	_, body, ok := bytes.Cut(dial.Request, []byte("\r\n\r\n"))
	if !ok {
		t.Fatalf("request has no header terminator: %q", dial.Request)
	}
	values, err := url.ParseQuery(string(bytes.TrimSuffix(body, []byte("\r\n"))))
	if err != nil {
		t.Fatalf("parsing form %q: %v", body, err)
	}
	return values
}

// pendingRequest builds a request as RequestDeviceCode would have at now
func pendingRequest(t *testing.T, now clock.Ticks, interval, expiresIn uint64) *Request {
	t.Helper()

	req := newRequest()
	mustSet(t, req.deviceCode.Set("AH-1Ng2pQ7rT"))
	mustSet(t, req.userCode.Set("GQVQ-JKEC"))
	mustSet(t, req.verificationURL.Set("https://www.google.com/device"))
	req.pollInterval = clock.FromSeconds(interval)
	req.nextPollAt = now + req.pollInterval
	req.expiresAt = now + clock.FromSeconds(expiresIn)
	return req
}

// authorizedCredentials builds credentials holding tokens valid until expiresAt
func authorizedCredentials(t *testing.T, access, refresh string, expiresAt clock.Ticks) *Credentials {
	t.Helper()

	creds := NewCredentials(testClientID, testClientSecret)
	mustSet(t, creds.accessToken.Set(access))
	mustSet(t, creds.refreshToken.Set(refresh))
	creds.expiresAt = expiresAt
	return creds
}

func mustSet(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
}
