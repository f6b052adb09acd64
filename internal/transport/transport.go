// Package transport wraps a keep-alive http.Transport tuned for small,
// latency-sensitive object-storage requests: Nagle disabled on every socket
// it opens via a dial hook, bounded idle connection lifetime, and a clean
// Destroy for shutdown.
package transport

import (
	"context"
	"net"
	"net/http"
	"time"
)

const (
	// DefaultIdleConnTimeout is how long a free socket sits in the pool
	// before being closed.
	DefaultIdleConnTimeout = 60 * time.Second
	// DefaultRequestTimeout is a 120s end-to-end bound for one operation,
	// for callers to apply via context.WithTimeout. Nothing in this module
	// applies it: the Transport sets no overall request deadline, and an
	// operation is bounded only by the context its caller passes in.
	DefaultRequestTimeout = 120 * time.Second

	defaultDialTimeout   = 10 * time.Second
	defaultKeepAlive     = 30 * time.Second
	defaultMaxIdleConns  = 100
	defaultMaxIdlePerHost = 20
)

// Options configures the transport. Zero values fall back to the defaults
// above.
type Options struct {
	IdleConnTimeout time.Duration
	DialTimeout     time.Duration
	KeepAlive       time.Duration
}

// Transport is the HTTP/1.1 client primitive RequestPipeline drives. It
// exposes RoundTrip directly - the pipeline, not the transport, owns body
// streaming and the reused-vs-fresh-socket readiness gate (see
// internal/pipeline).
type Transport struct {
	http *http.Transport
}

// New builds a Transport with keep-alive pooling and TCP_NODELAY on every
// dialed socket.
func New(opts Options) *Transport {
	idleTimeout := opts.IdleConnTimeout
	if idleTimeout == 0 {
		idleTimeout = DefaultIdleConnTimeout
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = defaultDialTimeout
	}
	keepAlive := opts.KeepAlive
	if keepAlive == 0 {
		keepAlive = defaultKeepAlive
	}

	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: keepAlive,
	}

	rt := &http.Transport{
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdlePerHost,
		IdleConnTimeout:     idleTimeout,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			// Nagle off: latency trumps coalescing for small object bodies.
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				_ = tcpConn.SetNoDelay(true)
			}
			return conn, nil
		},
	}

	return &Transport{http: rt}
}

// RoundTrip sends req and returns the response, exactly as http.RoundTripper.
// The caller (RequestPipeline) is responsible for setting req.Body to a
// reader that is only consumed once the connection is proven writable.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.http.RoundTrip(req)
}

// Destroy drains and closes all idle connections - required for clean
// shutdown of long-lived clients.
func (t *Transport) Destroy() {
	t.http.CloseIdleConnections()
}
