package peer

import (
	"io"
	"sync"

	"iduncart/util"
)

// Channel is the data side of one cartridge connection as a handler
// sees it: In yields the bytes the cartridge wrote to its data
// register, Out delivers bytes for the cartridge to read.
//
// Handlers operate on a Channel rather than the raw connection so the
// block protocol can share the socket: writes to Out are held back
// while a block transfer is in flight.
type Channel struct {
	In     io.Reader
	Out    io.Writer
	Logger *util.Logger
}

// lockedWriter serialises handler output with block transfers.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
