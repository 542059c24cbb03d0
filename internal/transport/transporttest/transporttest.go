// Package transporttest provides scripted transport fakes for tests
package transporttest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/wrale/oauth2-device-client/internal/clock"
	"github.com/wrale/oauth2-device-client/internal/transport"
)

// ErrDialRefused is returned by a Dialer configured to refuse connections
var ErrDialRefused = errors.New("dial refused")

// Dial records a single connection attempt
type Dial struct {
	Host    string
	Port    int
	Request []byte
	Closed  bool
}

// Dialer is a transport.Dialer spy. Each Dial consumes the next scripted
// response; responses are delivered to the reader in the given pieces.
type Dialer struct {
	// Refuse makes every Dial fail with ErrDialRefused
	Refuse bool

	// Clock, when set, is advanced by IdleStep on every read that finds no
	// bytes so read loops bounded by the clock terminate
	Clock    *clock.Manual
	IdleStep clock.Ticks

	// CloseAfterScript makes reads return io.EOF once the script is drained
	CloseAfterScript bool

	mu        sync.Mutex
	responses [][][]byte
	dials     []*Dial
}

// Respond queues a response split into the given pieces
func (d *Dialer) Respond(pieces ...string) *Dialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	chunks := make([][]byte, len(pieces))
	for i, p := range pieces {
		chunks[i] = []byte(p)
	}
	d.responses = append(d.responses, chunks)
	return d
}

// Dial implements transport.Dialer
func (d *Dialer) Dial(ctx context.Context, host string, port int) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec := &Dial{Host: host, Port: port}
	d.dials = append(d.dials, rec)
	if d.Refuse {
		return nil, ErrDialRefused
	}

	var script [][]byte
	if len(d.responses) > 0 {
		script = d.responses[0]
		d.responses = d.responses[1:]
	}
	step := d.IdleStep
	if step == 0 {
		step = 100
	}
	return &Conn{dial: rec, script: script, clock: d.Clock, idleStep: step, eof: d.CloseAfterScript, mu: &d.mu}, nil
}

// Dials returns every recorded connection attempt
func (d *Dialer) Dials() []*Dial {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Dial, len(d.dials))
	copy(out, d.dials)
	return out
}

// DialCount returns the number of connection attempts
func (d *Dialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

// Conn replays a scripted response and records the request
type Conn struct {
	dial     *Dial
	script   [][]byte
	clock    *clock.Manual
	idleStep clock.Ticks
	eof      bool
	mu       *sync.Mutex
}

// Write records request bytes
func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dial.Closed {
		return 0, io.ErrClosedPipe
	}
	c.dial.Request = append(c.dial.Request, p...)
	return len(p), nil
}

// ReadAvailable delivers the next scripted piece
func (c *Conn) ReadAvailable(p []byte) (int, error) {
	if len(c.script) == 0 {
		if c.eof {
			return 0, io.EOF
		}
		if c.clock != nil {
			c.clock.Advance(c.idleStep)
		}
		return 0, nil
	}
	n := copy(p, c.script[0])
	if n == len(c.script[0]) {
		c.script = c.script[1:]
	} else {
		c.script[0] = c.script[0][n:]
	}
	return n, nil
}

// Close marks the connection closed
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dial.Closed = true
	return nil
}

// ChunkedResponse renders an HTTP/1.1 response whose body is sent as a
// single chunk followed by the terminating zero-length chunk
func ChunkedResponse(status int, statusText, body string) string {
	return fmt.Sprintf("HTTP/1.1 %d %s\r\n"+
		"Content-Type: application/json; charset=utf-8\r\n"+
		"Transfer-Encoding: chunked\r\n"+
		"\r\n"+
		"%x\r\n%s\r\n"+
		"0\r\n\r\n", status, statusText, len(body), body)
}
