// Package transport defines the secure byte-stream capability the raw HTTP
// exchange runs over, together with a crypto/tls implementation
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

const (
	// DefaultDialTimeout bounds TCP connect plus TLS handshake
	DefaultDialTimeout = 10 * time.Second

	// DefaultPollInterval is how long ReadAvailable waits for bytes before
	// reporting that none are available
	DefaultPollInterval = 20 * time.Millisecond
)

// Conn is an open secure connection to a single host
type Conn interface {
	io.Writer

	// ReadAvailable copies bytes that have already arrived into p. It returns
	// 0 and a nil error when nothing is available yet, and io.EOF once the
	// peer has closed the stream.
	ReadAvailable(p []byte) (int, error)

	// Close releases the connection
	Close() error
}

// Dialer opens secure connections
type Dialer interface {
	Dial(ctx context.Context, host string, port int) (Conn, error)
}

// TLSDialer dials TLS connections using crypto/tls
type TLSDialer struct {
	// Config is cloned for every dial. ServerName defaults to the dialed host.
	Config *tls.Config

	// DialTimeout bounds connect plus handshake. Zero means DefaultDialTimeout.
	DialTimeout time.Duration

	// PollInterval bounds each ReadAvailable call. Zero means DefaultPollInterval.
	PollInterval time.Duration
}

// Dial connects to host:port and completes the TLS handshake
func (d *TLSDialer) Dial(ctx context.Context, host string, port int) (Conn, error) {
	timeout := d.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	var cfg *tls.Config
	if d.Config != nil {
		cfg = d.Config.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		Config:    cfg,
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("dialing %s:%d: %w", host, port, err)
	}

	poll := d.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &tlsConn{conn: conn, poll: poll}, nil
}

type tlsConn struct {
	conn net.Conn
	poll time.Duration
}

func (c *tlsConn) Write(p []byte) (int, error) {
	return c.conn.Write(p)
}

func (c *tlsConn) ReadAvailable(p []byte) (int, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.poll)); err != nil {
		return 0, fmt.Errorf("setting read deadline: %w", err)
	}
	n, err := c.conn.Read(p)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return n, nil
		}
		return n, err
	}
	return n, nil
}

func (c *tlsConn) Close() error {
	return c.conn.Close()
}
