// Package providertest runs an in-process identity provider that speaks the
// device authorization endpoints over TLS. Every response body is sent with
// chunked transfer encoding and pretty-printed, the way the real provider
// answers.
package providertest

import (
	"crypto/x509"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Paths served by the provider
const (
	DeviceCodePath = "/o/oauth2/device/code"
	TokenPath      = "/oauth2/v4/token"
)

const (
	grantTypeLegacy  = "http://oauth.net/grant_type/device/1.0"
	grantTypeDevice  = "urn:ietf:params:oauth:grant-type:device_code"
	grantTypeRefresh = "refresh_token"
)

type grantStatus int

const (
	statusPending grantStatus = iota
	statusApproved
	statusDenied
	statusIssued
)

type grant struct {
	deviceCode string
	userCode   string
	scope      string
	expiresAt  time.Time
	lastPoll   time.Time
	status     grantStatus
}

// Provider is a fake identity provider. Start it with New and stop it with
// Close.
type Provider struct {
	clientID     string
	clientSecret string

	expiresIn       time.Duration
	interval        time.Duration
	tokenTTL        time.Duration
	enforceInterval bool
	verificationKey string

	mu       sync.Mutex
	grants   map[string]*grant
	byUser   map[string]*grant
	refresh  map[string]bool
	requests map[string]int

	server *httptest.Server
}

// Option configures a Provider
type Option func(*Provider)

// WithExpiresIn sets the device code lifetime reported to clients
func WithExpiresIn(d time.Duration) Option {
	return func(p *Provider) { p.expiresIn = d }
}

// WithInterval sets the poll interval reported to clients
func WithInterval(d time.Duration) Option {
	return func(p *Provider) { p.interval = d }
}

// WithTokenTTL sets the access token lifetime
func WithTokenTTL(d time.Duration) Option {
	return func(p *Provider) { p.tokenTTL = d }
}

// WithEnforcedInterval makes polls arriving sooner than the interval answer
// slow_down
func WithEnforcedInterval() Option {
	return func(p *Provider) { p.enforceInterval = true }
}

// WithVerificationURI reports the verification address under the RFC 8628
// key verification_uri instead of verification_url
func WithVerificationURI() Option {
	return func(p *Provider) { p.verificationKey = "verification_uri" }
}

// New starts a provider accepting the given client credentials
func New(clientID, clientSecret string, opts ...Option) *Provider {
	p := &Provider{
		clientID:        clientID,
		clientSecret:    clientSecret,
		expiresIn:       30 * time.Minute,
		interval:        5 * time.Second,
		tokenTTL:        time.Hour,
		verificationKey: "verification_url",
		grants:          make(map[string]*grant),
		byUser:          make(map[string]*grant),
		refresh:         make(map[string]bool),
		requests:        make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(p.count)
	r.Post(DeviceCodePath, p.handleDeviceCode)
	r.Post(TokenPath, p.handleToken)

	p.server = httptest.NewTLSServer(r)
	return p
}

// Close shuts the provider down
func (p *Provider) Close() {
	p.server.Close()
}

// Addr returns the host and port the provider listens on
func (p *Provider) Addr() (string, int) {
	host, port, _ := net.SplitHostPort(p.server.Listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return host, n
}

// RootCAs returns a pool trusting the provider's certificate
func (p *Provider) RootCAs() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(p.server.Certificate())
	return pool
}

// Requests returns how many requests reached path
func (p *Provider) Requests(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[path]
}

// Approve marks the grant for userCode as authorized by the user
func (p *Provider) Approve(userCode string) bool {
	return p.resolve(userCode, statusApproved)
}

// Deny marks the grant for userCode as refused by the user
func (p *Provider) Deny(userCode string) bool {
	return p.resolve(userCode, statusDenied)
}

// PendingUserCodes returns the user codes still awaiting a decision
func (p *Provider) PendingUserCodes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var codes []string
	for code, g := range p.byUser {
		if g.status == statusPending {
			codes = append(codes, code)
		}
	}
	return codes
}

// Revoke invalidates a refresh token
func (p *Provider) Revoke(refreshToken string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.refresh, refreshToken)
}

func (p *Provider) resolve(userCode string, status grantStatus) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.byUser[userCode]
	if !ok || g.status != statusPending {
		return false
	}
	g.status = status
	return true
}

func (p *Provider) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.requests[r.URL.Path]++
		p.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// writeJSON sends v pretty-printed. Flushing the header before the body
// forces chunked transfer encoding.
func (p *Provider) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.WriteHeader(status)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	w.Write(append(body, '\n'))
}

// authenticate checks client_id and, when required, client_secret
func (p *Provider) authenticate(w http.ResponseWriter, r *http.Request, needSecret bool) bool {
	if r.PostForm.Get("client_id") != p.clientID {
		p.writeError(w, "invalid_client", "The OAuth client was not found.")
		return false
	}
	if needSecret && r.PostForm.Get("client_secret") != p.clientSecret {
		p.writeError(w, "invalid_client", "Unauthorized")
		return false
	}
	return true
}

func (p *Provider) handleDeviceCode(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		p.writeError(w, "invalid_request", "Invalid request format")
		return
	}
	if !p.authenticate(w, r, false) {
		return
	}
	scope := r.PostForm.Get("scope")
	if scope == "" {
		p.writeError(w, "invalid_scope", "Missing required parameter: scope")
		return
	}

	deviceCode, err := generateSecureCode(32)
	if err != nil {
		p.writeError(w, "server_error", "Failed to generate device code")
		return
	}
	userCode, err := generateUserCode()
	if err != nil {
		p.writeError(w, "server_error", "Failed to generate user code")
		return
	}

	g := &grant{
		deviceCode: "AH-" + deviceCode,
		userCode:   userCode,
		scope:      scope,
		expiresAt:  time.Now().Add(p.expiresIn),
	}
	p.mu.Lock()
	p.grants[g.deviceCode] = g
	p.byUser[g.userCode] = g
	p.mu.Unlock()

	p.writeJSON(w, http.StatusOK, map[string]any{
		"device_code":     g.deviceCode,
		"user_code":       g.userCode,
		p.verificationKey: "https://www.google.com/device",
		"expires_in":      int(p.expiresIn / time.Second),
		"interval":        int(p.interval / time.Second),
	})
}

func (p *Provider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		p.writeError(w, "invalid_request", "Invalid request format")
		return
	}
	if !p.authenticate(w, r, true) {
		return
	}

	switch grantType := r.PostForm.Get("grant_type"); grantType {
	case grantTypeLegacy:
		p.handleDeviceToken(w, r.PostForm.Get("code"))
	case grantTypeDevice:
		p.handleDeviceToken(w, r.PostForm.Get("device_code"))
	case grantTypeRefresh:
		p.handleRefresh(w, r.PostForm.Get("refresh_token"))
	case "":
		p.writeError(w, "invalid_request", "Required parameter is missing: grant_type")
	default:
		p.writeError(w, "unsupported_grant_type", "Invalid grant_type: "+grantType)
	}
}

func (p *Provider) handleDeviceToken(w http.ResponseWriter, deviceCode string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	g, ok := p.grants[deviceCode]
	if !ok || g.status == statusIssued {
		p.writeError(w, "invalid_grant", "Malformed auth code.")
		return
	}
	now := time.Now()
	if now.After(g.expiresAt) {
		p.writeError(w, "expired_token", "")
		return
	}
	tooSoon := p.enforceInterval && !g.lastPoll.IsZero() && now.Sub(g.lastPoll) < p.interval
	g.lastPoll = now

	switch {
	case g.status == statusDenied:
		p.writeError(w, "access_denied", "Forbidden")
	case tooSoon:
		p.writeError(w, "slow_down", "Forbidden")
	case g.status == statusPending:
		p.writeError(w, "authorization_pending", "Precondition Required")
	default:
		g.status = statusIssued
		access, refresh, err := p.issue()
		if err != nil {
			p.writeError(w, "server_error", "Failed to issue token")
			return
		}
		p.refresh[refresh] = true
		p.writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  access,
			"expires_in":    int(p.tokenTTL / time.Second),
			"refresh_token": refresh,
			"scope":         g.scope,
			"token_type":    "Bearer",
		})
	}
}

func (p *Provider) handleRefresh(w http.ResponseWriter, refreshToken string) {
	p.mu.Lock()
	valid := p.refresh[refreshToken]
	p.mu.Unlock()
	if !valid {
		p.writeError(w, "invalid_grant", "Token has been expired or revoked.")
		return
	}

	access, _, err := p.issue()
	if err != nil {
		p.writeError(w, "server_error", "Failed to issue token")
		return
	}
	p.writeJSON(w, http.StatusOK, map[string]any{
		"access_token": access,
		"expires_in":   int(p.tokenTTL / time.Second),
		"token_type":   "Bearer",
	})
}

func (p *Provider) issue() (access, refresh string, err error) {
	a, err := generateSecureCode(48)
	if err != nil {
		return "", "", err
	}
	r, err := generateSecureCode(24)
	if err != nil {
		return "", "", err
	}
	return "ya29." + a, "1//0g" + r, nil
}
