package cartridge

const (
	// WindowSentinel is what the page window reads as while the cache
	// is being populated.
	WindowSentinel = 0xDE

	// pageReady is the direction flag in the page selector: set, the
	// window is readable; clear, it accepts stores into the cache.
	pageReady     = 0x80
	pageIndexMask = PagesPerBlock - 1
)

// PageSelect returns the page selector: page index plus direction flag.
func (s *Session) PageSelect() uint8 { return s.page }

func (s *Session) pageReady() bool { return s.page&pageReady != 0 }
func (s *Session) pageIndex() int  { return int(s.page & pageIndexMask) }

// ReadPageRegister returns the page selector without side effects.
func (s *Session) ReadPageRegister() uint8 { return s.page }

// WriteBlockRegister selects the block cached for the window.
// Selecting a different block loads it; selecting the system block
// again refreshes it; selecting the current block again does nothing.
func (s *Session) WriteBlockRegister(v uint8) {
	switch {
	case v != s.block:
		s.block = v
		s.page &^= pageReady
		if s.loadBlock(v) {
			s.opts.Metrics.BlockLoaded(v)
		}
		s.page |= pageReady
	case v == SystemBlock:
		s.reloadSystemBlock()
		s.page |= pageReady
	}
}

// WritePageRegister selects the cache page exposed through the window
// and opens it for reading.
func (s *Session) WritePageRegister(v uint8) {
	s.page = v | pageReady
}

// WindowStore writes into the selected cache page.  It only takes
// effect while the page is loading.
func (s *Session) WindowStore(addr uint16, b uint8) {
	if s.pageReady() {
		return
	}
	s.cache[s.cacheOffset(addr)] = b
}

// WindowRead returns a byte of the selected cache page, or
// WindowSentinel while the page is loading.
func (s *Session) WindowRead(addr uint16) uint8 {
	if !s.pageReady() {
		return WindowSentinel
	}
	return s.cache[s.cacheOffset(addr)]
}

// Page returns a copy of cache page i (0-63).
func (s *Session) Page(i int) []byte {
	off := (i & pageIndexMask) * PageSize
	p := make([]byte, PageSize)
	copy(p, s.cache[off:off+PageSize])
	return p
}

func (s *Session) cacheOffset(addr uint16) int {
	return s.pageIndex()*PageSize + int(addr&0xFF)
}
