package httpwire

import "errors"

var (
	// ErrConnectFailed indicates the transport could not open or write to a connection
	ErrConnectFailed = errors.New("connect failed")

	// ErrEmptyResponse indicates no response body arrived before the read timeout
	ErrEmptyResponse = errors.New("empty response")

	// ErrResponseTooLarge indicates the response overflowed a fixed-capacity buffer
	ErrResponseTooLarge = errors.New("response too large")
)
