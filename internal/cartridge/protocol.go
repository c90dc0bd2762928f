package cartridge

import (
	"io"

	ncerr "iduncart/internal/errors"
)

// Peer-facing frames.  The handshake borrows the IEC bus vocabulary:
// the cartridge addresses the channel to listen for a page, releases
// it after each one, and issues commands on the secondary channel.
const (
	cmdPrefix   = 0x20
	listenBusy  = 0x40
	channel     = 0x7F
	releaseByte = 0x5F

	opLoadBlock = 0xFC
	opFreemap   = 0xF7
)

var (
	frameAddress = []byte{listenBusy, channel}
	frameRelease = []byte{releaseByte}
)

// loadBlock asks the peer for block id and streams it into the cache,
// reporting whether the transfer completed.  A send failure leaves the
// cache as it was.
func (s *Session) loadBlock(id uint8) bool {
	if !s.IsConnected() {
		s.log.Verbose("load block $%02X: not connected", id)
		return false
	}
	if !s.command(opLoadBlock, id) || !s.fetchPages() {
		return false
	}
	s.log.Info("block $%02X loaded", id)
	return true
}

// reloadSystemBlock refreshes the housekeeping block in place.
func (s *Session) reloadSystemBlock() {
	if !s.IsConnected() {
		s.log.Verbose("freemap: not connected")
		return
	}
	if !s.command(opFreemap, s.block) {
		return
	}
	if !s.fetchPages() {
		return
	}
	s.opts.Metrics.SystemReloaded()
	s.log.Verbose("system block reloaded")
}

func (s *Session) command(op, id uint8) bool {
	return s.send("command", []byte{cmdPrefix, channel, op, id})
}

// fetchPages runs the page handshake: address the channel, read the
// page count, then for each page read 256 bytes into the next cache
// slot and release.  The channel is released once more at the end,
// also when the peer has no pages to send.
//
// Pages land in the cache as they arrive; a transfer that fails part
// way leaves the earlier pages overwritten.
func (s *Session) fetchPages() bool {
	if !s.send("address", frameAddress) {
		return false
	}

	var count [1]byte
	if !s.receiveFull("page-count", count[:]) {
		return false
	}
	pages := int(count[0])
	if pages > PagesPerBlock {
		s.disconnect()
		s.fatal(ncerr.Protocol("page-count", PagesPerBlock, pages, nil))
		return false
	}
	s.log.Debug("peer sends %d pages", pages)

	for slot := 0; pages > 0; slot++ {
		off := slot * PageSize
		if !s.receiveFull("page", s.cache[off:off+PageSize]) {
			return false
		}
		s.opts.Metrics.PageReceived()
		if !s.send("release", frameRelease) {
			return false
		}
		pages--
		if pages > 0 && !s.send("address", frameAddress) {
			return false
		}
	}
	return s.send("release", frameRelease)
}

// send writes a whole frame.  Failure is a transport error.
func (s *Session) send(op string, frame []byte) bool {
	if s.wire == nil {
		return false
	}
	n, err := s.wire.Send(frame)
	if err == nil && n != len(frame) {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.transportFailure(op, err)
		return false
	}
	return true
}

// receiveFull fills p from the wire.  A peer that goes away before
// sending anything, a timeout and a socket error are transport errors.
// A stream that stops part way through p is out of step with the peer,
// which is a protocol violation.
func (s *Session) receiveFull(op string, p []byte) bool {
	if s.wire == nil {
		return false
	}
	n, err := s.wire.ReceiveFull(p)
	if err == nil && n == len(p) {
		return true
	}
	gone := n == 0 && err != nil && !ncerr.Is(err, io.ErrUnexpectedEOF)
	if gone || ncerr.Is(err, ncerr.ErrTimeout) {
		s.transportFailure(op, err)
		return false
	}
	s.disconnect()
	s.fatal(ncerr.Protocol(op, len(p), n, err))
	return false
}
