// Package status serves a local health endpoint reporting where the device
// stands in the authorization flow
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wrale/oauth2-device-client/internal/clock"
	"github.com/wrale/oauth2-device-client/internal/deviceflow"
)

// HealthChecker is implemented by dependencies that can report reachability,
// such as the Redis credential store
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Snapshot is a copy of the non-secret flow state
type Snapshot struct {
	State           string `json:"state"`
	UserCode        string `json:"user_code,omitempty"`
	VerificationURL string `json:"verification_url,omitempty"`
	ExpiresIn       int64  `json:"expires_in,omitempty"`
	LastError       string `json:"last_error,omitempty"`
}

// Tracker holds the latest Snapshot. The flow loop writes it and the HTTP
// handler reads it from another goroutine.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker returns a tracker reporting Unstarted
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{State: deviceflow.Unstarted.String()}}
}

// Observe records the state of creds and, while the user has yet to act,
// the code and URL to show them. req may be nil. Tokens are never copied.
func (t *Tracker) Observe(creds *deviceflow.Credentials, req *deviceflow.Request, now clock.Ticks) {
	snap := Snapshot{State: creds.State(now).String()}

	switch {
	case snap.State == deviceflow.Authorized.String():
		snap.ExpiresIn = int64((creds.ExpiresAt() - now).Duration() / time.Second)
	case req.State(now) == deviceflow.PendingUserAction:
		snap.State = deviceflow.PendingUserAction.String()
		snap.UserCode = req.UserCode()
		snap.VerificationURL = req.VerificationURL()
		snap.ExpiresIn = int64((req.ExpiresAt() - now).Duration() / time.Second)
	}

	t.mu.Lock()
	snap.LastError = t.snap.LastError
	t.snap = snap
	t.mu.Unlock()
}

// SetError records the most recent flow failure; nil clears it
func (t *Tracker) SetError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		t.snap.LastError = ""
		return
	}
	t.snap.LastError = err.Error()
}

// Snapshot returns a copy of the latest state
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Response represents the health check response
type Response struct {
	Status  string         `json:"status"`
	Version string         `json:"version,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Handler processes health check requests
type Handler struct {
	tracker *Tracker
	checks  map[string]HealthChecker
	version string
}

// New creates a health handler reporting tracker's state
func New(tracker *Tracker) *Handler {
	return &Handler{
		tracker: tracker,
		checks:  make(map[string]HealthChecker),
		version: "unknown",
	}
}

// WithVersion sets the version for health check responses
func (h *Handler) WithVersion(version string) *Handler {
	h.version = version
	return h
}

// WithCheck adds a dependency whose failure marks the service unhealthy
func (h *Handler) WithCheck(name string, c HealthChecker) *Handler {
	h.checks[name] = c
	return h
}

// ServeHTTP handles health check requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	response := Response{
		Status:  "healthy",
		Version: h.version,
		Details: map[string]any{"credentials": h.tracker.Snapshot()},
	}

	for name, c := range h.checks {
		if err := c.CheckHealth(r.Context()); err != nil {
			response.Status = "unhealthy"
			response.Details[name] = map[string]any{
				"status":  "unhealthy",
				"message": err.Error(),
			}
			continue
		}
		response.Details[name] = map[string]any{"status": "healthy"}
	}

	if response.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, `{"error":"server_error","error_description":"Error encoding response"}`,
			http.StatusInternalServerError)
	}
}

// NewRouter mounts h at /health
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Method(http.MethodGet, "/health", h)
	return r
}
