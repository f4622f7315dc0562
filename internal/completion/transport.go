package completion

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

const (
	// HTTP client configuration defaults
	DefaultConnectTimeout  = 10 * time.Second
	DefaultReadTimeout     = 300 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleConnTimeout = 30 * time.Second
	TCPKeepAliveInterval   = 30 * time.Second
)

// TransportConfig bounds the connection behavior of one run
type TransportConfig struct {
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleConnTimeout time.Duration

	// MaxConns should be at least the run's concurrency so requests do not
	// queue inside the transport below the admission gate.
	MaxConns int
	HTTP2    bool
}

func (c *TransportConfig) withDefaults() TransportConfig {
	out := *c
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = DefaultConnectTimeout
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = DefaultReadTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = DefaultWriteTimeout
	}
	if out.IdleConnTimeout <= 0 {
		out.IdleConnTimeout = DefaultIdleConnTimeout
	}
	if out.MaxConns <= 0 {
		out.MaxConns = 1
	}
	return out
}

// deadlineConn arms a fresh deadline before every read and write, so a
// stalled peer fails the request after one idle period instead of hanging.
// A long streaming response that keeps sending bytes is never cut off.
type deadlineConn struct {
	net.Conn
	read  time.Duration
	write time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.write)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}

// NewTransport builds the shared pooled transport for one run
func NewTransport(cfg TransportConfig) (*http.Transport, error) {
	cfg = cfg.withDefaults()

	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: TCPKeepAliveInterval,
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{Conn: conn, read: cfg.ReadTimeout, write: cfg.WriteTimeout}, nil
		},
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		MaxIdleConns:          cfg.MaxConns,
		MaxIdleConnsPerHost:   cfg.MaxConns,
		MaxConnsPerHost:       cfg.MaxConns,
	}

	if cfg.HTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("failed to enable http2: %w", err)
		}
	} else {
		transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}

	return transport, nil
}
