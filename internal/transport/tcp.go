package transport

import (
	"context"
	"net"
	"time"
)

// TCPDialer connects straight to the peer's service port.
type TCPDialer struct {
	Timeout time.Duration // connect timeout, 0 = OS default

	// NoDelay disables Nagle's algorithm.  The data register sends one
	// byte per CPU store, so batching only adds latency.
	NoDelay bool
}

// Dial connects to address over TCP.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}

	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok && d.NoDelay {
		tc.SetNoDelay(true) //nolint:errcheck
	}
	return conn, nil
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }
