// Package transport provides the wire underneath a cartridge session:
// Dialers that open a stream to the coprocessor peer (directly over
// TCP or through an SSH gateway) and Link, which turns that stream
// into the send / poll / receive primitives the register file needs.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound connections to the peer.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
