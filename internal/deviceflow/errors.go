package deviceflow

import (
	"errors"

	"github.com/wrale/oauth2-device-client/internal/httpwire"
	"github.com/wrale/oauth2-device-client/internal/response"
	"github.com/wrale/oauth2-device-client/internal/validation"
)

// Failures returned by the device flow operations. None are retried
// internally; match them with errors.Is.
var (
	// ErrConnectFailed indicates the secure transport could not reach the provider
	ErrConnectFailed = httpwire.ErrConnectFailed

	// ErrEmptyResponse indicates nothing usable arrived before the read timeout
	ErrEmptyResponse = httpwire.ErrEmptyResponse

	// ErrResponseTooLarge indicates the response overflowed a fixed buffer
	ErrResponseTooLarge = httpwire.ErrResponseTooLarge

	// ErrMalformedResponse indicates the body was not a usable JSON object
	ErrMalformedResponse = response.ErrMalformedResponse

	// ErrMissingField indicates a required key was absent, see MissingFieldError
	ErrMissingField = response.ErrMissingField

	// ErrProvider indicates the provider rejected the request, see ProviderError
	ErrProvider = response.ErrProvider

	// ErrValueTooLong indicates a returned value exceeded its field capacity
	ErrValueTooLong = validation.ErrValueTooLong
)

// Timing outcomes. These are not failures: they tell the caller to do
// nothing now.
var (
	// ErrNotYetDue indicates the provider's poll interval has not elapsed
	ErrNotYetDue = errors.New("poll not yet due")

	// ErrExpired indicates the device code expired; restart with RequestDeviceCode
	ErrExpired = errors.New("device code expired")

	// ErrNotDue indicates the access token has not expired yet
	ErrNotDue = errors.New("refresh not due")
)

var (
	// ErrNotStarted indicates a request that was never populated by RequestDeviceCode
	ErrNotStarted = errors.New("device authorization not started")

	// ErrNoRefreshToken indicates refresh was attempted without a refresh token
	ErrNoRefreshToken = errors.New("no refresh token")
)

type (
	// ProviderError carries the provider's error code and description
	ProviderError = response.ProviderError

	// MissingFieldError names the absent key
	MissingFieldError = response.MissingFieldError
)

// OAuth error codes the provider returns while polling per RFC 8628 section 3.5
const (
	ErrorCodeAuthorizationPending = "authorization_pending"
	ErrorCodeSlowDown             = "slow_down"
	ErrorCodeAccessDenied         = "access_denied"
	ErrorCodeExpiredToken         = "expired_token"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidScope         = "invalid_scope"
)

// ProviderErrorCode returns the provider error code carried by err, if any
func ProviderErrorCode(err error) (string, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return "", false
}

// ProviderErrorIs reports whether err is a provider rejection with the given code
func ProviderErrorIs(err error, code string) bool {
	got, ok := ProviderErrorCode(err)
	return ok && got == code
}

// IsAuthorizationPending reports whether the user has not yet approved the device
func IsAuthorizationPending(err error) bool {
	return ProviderErrorIs(err, ErrorCodeAuthorizationPending)
}

// IsSlowDown reports whether the provider asked the device to poll less often
func IsSlowDown(err error) bool {
	return ProviderErrorIs(err, ErrorCodeSlowDown)
}

// IsTimingGate reports whether err is a do-nothing-now outcome rather than a failure
func IsTimingGate(err error) bool {
	return errors.Is(err, ErrNotYetDue) || errors.Is(err, ErrNotDue)
}
