package cartridge

const (
	// ProbeID identifies the cartridge to software scanning IO1.
	ProbeID = 0x9B
	// NoData is what the data register reads as when nothing is
	// buffered.
	NoData = 0x42

	maxCount = 255
)

// Probe returns the presence identifier.  It works whether or not the
// session is connected.
func (s *Session) Probe() uint8 { return ProbeID }

// ReadData returns the next buffered byte, or NoData if the buffer is
// drained.  It never touches the wire; AvailableCount refills.
func (s *Session) ReadData() uint8 {
	if s.rd >= s.wr {
		return NoData
	}
	b := s.recv[s.rd]
	s.rd++
	return b
}

// AvailableCount returns the number of unread bytes, capped at 255.
// With the buffer drained it polls the wire once without blocking and,
// if the peer has sent something, performs a single receive that
// replaces the buffer contents.
func (s *Session) AvailableCount() uint8 {
	if n := s.wr - s.rd; n > 0 {
		return capCount(n)
	}
	if s.wire == nil || !s.wire.PollReady() {
		return 0
	}

	n, err := s.wire.Receive(s.recv[:])
	if err != nil {
		s.transportFailure("receive", err)
		s.rd, s.wr = 0, 0
		return 0
	}
	s.rd, s.wr = 0, n
	s.log.Debug("received %d bytes", n)
	return capCount(n)
}

// WriteData sends b to the peer.  A disconnected session drops it; a
// send failure disconnects.
func (s *Session) WriteData(b uint8) {
	if s.wire == nil {
		s.log.Verbose("write $%02X dropped: not connected", b)
		return
	}
	s.log.Debug("write $%02X", b)
	s.send("write", []byte{b})
}

func capCount(n int) uint8 {
	if n > maxCount {
		return maxCount
	}
	return uint8(n)
}
