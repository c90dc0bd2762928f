// Package tunnel carries peer connections over SSH.  The Idun
// coprocessor's service normally listens on its own loopback, so an
// emulator on another machine logs in over SSH and asks the server to
// open the peer port on its behalf (the equivalent of ssh -L).
package tunnel

import (
	"context"
	"net"
)

// Tunnel abstracts an encrypted channel through which peer connections
// can be forwarded.
type Tunnel interface {
	// Connect establishes the tunnel to the gateway.
	Connect(ctx context.Context) error

	// Dial opens a connection to address as seen from the gateway.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close tears down the tunnel and frees resources.
	Close() error

	// IsAlive reports whether the underlying connection is still up.
	IsAlive() bool
}
