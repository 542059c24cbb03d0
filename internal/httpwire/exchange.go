// Package httpwire implements the minimal raw HTTP/1.1 POST exchange used to
// talk to the identity provider over a secure byte stream
package httpwire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/wrale/oauth2-device-client/internal/clock"
	"github.com/wrale/oauth2-device-client/internal/transport"
)

const (
	// DefaultReadTimeout bounds how long a response is read after the request is sent
	DefaultReadTimeout = 1500 * time.Millisecond

	// DefaultUserAgent is sent with every request
	DefaultUserAgent = "oauth2-device-client/1.0"

	readBufferSize = 512

	defaultHTTPSPort = 443
)

// Exchanger performs one POST per call over a freshly dialed connection
type Exchanger struct {
	dialer      transport.Dialer
	clock       clock.Clock
	readTimeout clock.Ticks
	userAgent   string
	maxHeader   int
	maxBody     int
	logger      zerolog.Logger
}

// Option configures an Exchanger
type Option func(*Exchanger)

// WithClock sets the clock used to bound the read window
func WithClock(c clock.Clock) Option {
	return func(e *Exchanger) {
		e.clock = c
	}
}

// WithReadTimeout sets the read window measured from the first read attempt
func WithReadTimeout(d time.Duration) Option {
	return func(e *Exchanger) {
		e.readTimeout = clock.FromDuration(d)
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(ua string) Option {
	return func(e *Exchanger) {
		e.userAgent = ua
	}
}

// WithLimits sets the header and body capacities
func WithLimits(maxHeader, maxBody int) Option {
	return func(e *Exchanger) {
		e.maxHeader = maxHeader
		e.maxBody = maxBody
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(e *Exchanger) {
		e.logger = l
	}
}

// NewExchanger creates an exchanger dialing through d
func NewExchanger(d transport.Dialer, opts ...Option) *Exchanger {
	e := &Exchanger{
		dialer:      d,
		clock:       clock.NewSystem(),
		readTimeout: clock.FromDuration(DefaultReadTimeout),
		userAgent:   DefaultUserAgent,
		maxHeader:   DefaultMaxHeader,
		maxBody:     DefaultMaxBody,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.readTimeout == 0 {
		e.readTimeout = clock.FromDuration(DefaultReadTimeout)
	}
	return e
}

// Exchange POSTs form to https://host:port/path and returns the chunk-decoded
// response body.
//
// The response is expected to use chunked transfer coding; see ChunkDecoder.
// The body is returned regardless of the HTTP status so that provider error
// objects reach the caller.
func (e *Exchanger) Exchange(ctx context.Context, host string, port int, path string, form []byte) ([]byte, error) {
	conn, err := e.dialer.Dial(ctx, host, port)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	defer conn.Close()

	if _, err := conn.Write(e.buildRequest(host, port, path, form)); err != nil {
		return nil, fmt.Errorf("%w: writing request: %v", ErrConnectFailed, err)
	}

	dec := NewChunkDecoder(e.maxHeader, e.maxBody)
	received, err := e.readResponse(ctx, conn, dec)
	if err != nil {
		return nil, err
	}

	log := e.logger.With().Str("host", host).Str("path", path).Logger()
	if received == 0 {
		log.Debug().Msg("No bytes received before read timeout")
		return nil, ErrEmptyResponse
	}
	if dec.HeaderComplete() && !dec.Chunked() {
		log.Warn().Msg("Response is not declared chunked; body decoding may be incomplete")
	}
	log.Debug().
		Int("status", dec.StatusCode()).
		Int("bytes", received).
		Int("body_bytes", len(dec.Body())).
		Msg("Received response")

	if len(dec.Body()) == 0 {
		return nil, fmt.Errorf("%w: %d bytes received, no body decoded", ErrEmptyResponse, received)
	}

	body := make([]byte, len(dec.Body()))
	copy(body, dec.Body())
	return body, nil
}

func (e *Exchanger) buildRequest(host string, port int, path string, form []byte) []byte {
	hostHeader := host
	if port != defaultHTTPSPort {
		hostHeader = net.JoinHostPort(host, strconv.Itoa(port))
	}

	var b bytes.Buffer
	b.Grow(256 + len(form))
	b.WriteString("POST " + path + " HTTP/1.1\r\n")
	b.WriteString("Host: " + hostHeader + "\r\n")
	b.WriteString("User-Agent: " + e.userAgent + "\r\n")
	b.WriteString("Content-Length: " + strconv.Itoa(len(form)) + "\r\n")
	b.WriteString("Content-Type: application/x-www-form-urlencoded\r\n")
	b.WriteString("\r\n")
	b.Write(form)
	b.WriteString("\r\n")
	return b.Bytes()
}

// readResponse feeds the decoder until the read window closes, the peer
// closes, or the stream goes idle after a body has been decoded
func (e *Exchanger) readResponse(ctx context.Context, conn transport.Conn, dec *ChunkDecoder) (int, error) {
	buf := make([]byte, readBufferSize)
	received := 0
	start := e.clock.Now()

	for e.clock.Now()-start < e.readTimeout {
		if err := ctx.Err(); err != nil {
			return received, fmt.Errorf("reading response: %w", err)
		}

		n, err := conn.ReadAvailable(buf)
		if n > 0 {
			received += n
			if _, werr := dec.Write(buf[:n]); werr != nil {
				return received, werr
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.logger.Debug().Err(err).Msg("Read failed, treating as end of response")
			}
			break
		}
		if n == 0 && len(dec.Body()) > 0 {
			break
		}
	}
	return received, nil
}
