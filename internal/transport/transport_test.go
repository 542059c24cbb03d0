package transport

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestTLSDialerRoundTrip(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("splitting listener address: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())

	d := &TLSDialer{Config: &tls.Config{RootCAs: pool}, PollInterval: 10 * time.Millisecond}
	conn, err := d.Dial(context.Background(), host, port)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	// Nothing has been sent yet, so nothing is available
	buf := make([]byte, 512)
	n, err := conn.ReadAvailable(buf)
	if err != nil || n != 0 {
		t.Fatalf("ReadAvailable() before request = (%d, %v), want (0, nil)", n, err)
	}

	if _, err := io.WriteString(conn, "GET / HTTP/1.1\r\nHost: "+host+"\r\nConnection: close\r\n\r\n"); err != nil {
		t.Fatalf("writing request: %v", err)
	}

	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := conn.ReadAvailable(buf)
		got = append(got, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadAvailable() error = %v", err)
		}
	}

	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(got)), nil)
	if err != nil {
		t.Fatalf("parsing response %q: %v", got, err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
}

func TestTLSDialerConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	d := &TLSDialer{DialTimeout: time.Second}
	if _, err := d.Dial(context.Background(), "127.0.0.1", addr.Port); err == nil {
		t.Fatal("expected error dialing closed port")
	}
}
