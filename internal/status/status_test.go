package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wrale/oauth2-device-client/internal/clock"
	"github.com/wrale/oauth2-device-client/internal/deviceflow"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// pendingRequest obtains a real Request through a one-shot scripted client
func pendingRequest(t *testing.T, now clock.Ticks) *deviceflow.Request {
	t.Helper()

	ex := exchangerFunc(func() []byte {
		return []byte(`{"device_code":"AH-1Ng","user_code":"GQVQ-JKEC","verification_url":"https://www.google.com/device","expires_in":1800,"interval":5}`)
	})
	client := deviceflow.NewClient(ex, deviceflow.WithClock(clock.NewManual(now)))
	req, err := client.RequestDeviceCode(context.Background(), deviceflow.NewCredentials("id", "secret"), "scope")
	if err != nil {
		t.Fatalf("RequestDeviceCode() error = %v", err)
	}
	return req
}

type exchangerFunc func() []byte

func (f exchangerFunc) Exchange(ctx context.Context, host string, port int, path string, form []byte) ([]byte, error) {
	return f(), nil
}

func TestTrackerObserve(t *testing.T) {
	const now = clock.Ticks(1_000)
	tracker := NewTracker()

	if got := tracker.Snapshot().State; got != "unstarted" {
		t.Errorf("initial state = %q, want unstarted", got)
	}

	creds := deviceflow.NewCredentials("id", "secret")
	req := pendingRequest(t, now)
	tracker.Observe(creds, req, now+10_000)
	want := Snapshot{
		State:           "pending_user_action",
		UserCode:        "GQVQ-JKEC",
		VerificationURL: "https://www.google.com/device",
		ExpiresIn:       1790,
	}
	if diff := cmp.Diff(want, tracker.Snapshot()); diff != "" {
		t.Errorf("pending snapshot mismatch (-want +got):\n%s", diff)
	}

	tracker.SetError(errors.New("poll failed"))
	tracker.Observe(creds, req, now+1_800_001)
	want = Snapshot{State: "unstarted", LastError: "poll failed"}
	if diff := cmp.Diff(want, tracker.Snapshot()); diff != "" {
		t.Errorf("expired request snapshot mismatch (-want +got):\n%s", diff)
	}

	if err := creds.SetRefreshToken("1//0g"); err != nil {
		t.Fatal(err)
	}
	tracker.SetError(nil)
	tracker.Observe(creds, nil, now)
	if diff := cmp.Diff(Snapshot{State: "expired"}, tracker.Snapshot()); diff != "" {
		t.Errorf("restored snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestHealthHandler(t *testing.T) {
	version := "1.0.0"

	tests := []struct {
		name     string
		check    checkFunc
		wantCode int
		wantBody map[string]any
	}{
		{
			name:     "healthy store",
			check:    func(ctx context.Context) error { return nil },
			wantCode: http.StatusOK,
			wantBody: map[string]any{
				"status":  "healthy",
				"version": version,
				"details": map[string]any{
					"credentials": map[string]any{"state": "unstarted"},
					"store":       map[string]any{"status": "healthy"},
				},
			},
		},
		{
			name:     "store unreachable",
			check:    func(ctx context.Context) error { return errors.New("connection refused") },
			wantCode: http.StatusServiceUnavailable,
			wantBody: map[string]any{
				"status":  "unhealthy",
				"version": version,
				"details": map[string]any{
					"credentials": map[string]any{"state": "unstarted"},
					"store": map[string]any{
						"status":  "unhealthy",
						"message": "connection refused",
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(NewTracker()).WithVersion(version).WithCheck("store", tt.check)
			srv := httptest.NewServer(NewRouter(h))
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/health")
			if err != nil {
				t.Fatalf("GET /health: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if got := resp.Header.Get("Cache-Control"); got != "no-store" {
				t.Errorf("Cache-Control = %q, want no-store", got)
			}

			var got map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if diff := cmp.Diff(tt.wantBody, got); diff != "" {
				t.Errorf("response mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRouterRejectsOtherMethods(t *testing.T) {
	srv := httptest.NewServer(NewRouter(New(NewTracker())))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/health", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /health status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}
