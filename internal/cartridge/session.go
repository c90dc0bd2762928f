// Package cartridge emulates the Idun cartridge: a C64 expansion
// device that forwards register accesses to a coprocessor over a
// socket and caches one 16 KiB block of the coprocessor's memory
// (ERAM), exposed to the CPU one 256-byte page at a time.
//
// The register file lives at IO1 ($DE00-$DEFF) and the page window at
// IO2 ($DF00-$DFFF).  Every access runs inline on the goroutine that
// emulates the CPU, so a Session is not safe for concurrent use; there
// is exactly one per attached cartridge.
package cartridge

import (
	"context"
	"fmt"
	"time"

	ncerr "iduncart/internal/errors"
	"iduncart/internal/metrics"
	"iduncart/internal/retry"
	"iduncart/internal/transport"
	"iduncart/util"
)

const (
	// RecvBufSize is the largest message the peer service sends in
	// one write.
	RecvBufSize = 293

	PageSize      = 256
	PagesPerBlock = 64
	BlockSize     = PageSize * PagesPerBlock

	// SystemBlock holds the peer's housekeeping data (the free-block
	// map).  It is loaded on connect.
	SystemBlock uint8 = 255
)

// Wire is the transport a session talks through.  *transport.Link
// satisfies it; tests substitute scripted fakes.
type Wire interface {
	Send(p []byte) (int, error)
	PollReady() bool
	Receive(p []byte) (int, error)
	// ReceiveFull blocks until len(p) bytes arrived or the wire
	// failed.  It is the only call in the block protocol that waits
	// on the peer.
	ReceiveFull(p []byte) (int, error)
	Close() error
}

// ConnectFunc opens a Wire to host.
type ConnectFunc func(ctx context.Context, host string) (Wire, error)

// Options configure a Session.  The zero value dials over plain TCP,
// tries once and panics on protocol violations.
type Options struct {
	// Dialer opens the stream to the peer (default plain TCP).
	Dialer transport.Dialer
	// ConnectTimeout bounds each dial (default 5s).
	ConnectTimeout time.Duration
	// ConnectAttempts is the number of dials before the session
	// settles for disconnected (default 1).
	ConnectAttempts int
	// TransferTimeout bounds each wait in the block protocol.
	// Zero waits forever.
	TransferTimeout time.Duration

	// Connect replaces the transport entirely.  When set, Dialer,
	// ConnectTimeout and TransferTimeout are ignored.
	Connect ConnectFunc

	// Fatal is called with protocol violations.  The default logs the
	// error with its stack and panics; it must not return normally
	// into the transfer, which abandons the load either way.
	Fatal func(error)

	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Session is the state of one attached cartridge: the connection, the
// receive staging buffer and its cursors, the block cache, and the
// block and page selectors.
type Session struct {
	host string
	opts Options
	log  *util.Logger

	wire Wire // nil while disconnected

	recv [RecvBufSize]byte
	rd   int // next unread byte in recv
	wr   int // end of received data; rd <= wr <= RecvBufSize

	cache [BlockSize]byte
	block uint8 // block the cache holds
	page  uint8 // page index (bits 0-5) | pageReady
}

// Attach creates a session for host, connects it and loads the system
// block.  It never fails: a peer that cannot be reached leaves the
// session disconnected, and the cartridge reads as present but empty.
func Attach(ctx context.Context, host string, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(0)
	}
	s := &Session{
		opts: opts,
		log:  opts.Logger.Named("idun"),
	}
	s.init(ctx, host)
	return s
}

// Reset tears down the connection and reinitializes the session for
// host, reconnecting and reloading the system block.
func (s *Session) Reset(ctx context.Context, host string) {
	s.log.Info("cartridge reset")
	s.opts.Metrics.Reset()
	s.Destroy()
	s.init(ctx, host)
}

// Destroy closes the connection.  Destroying a disconnected session
// only logs a warning.
func (s *Session) Destroy() {
	s.log.Info("disconnect")
	if s.wire == nil {
		s.log.Warn("attempt to close non-open connection")
		return
	}
	s.disconnect()
}

// IsConnected reports whether the session has a live connection.
func (s *Session) IsConnected() bool { return s.wire != nil }

// Host returns the peer address the session was configured with.
func (s *Session) Host() string { return s.host }

// CurrentBlock returns the id of the block held in the cache.
func (s *Session) CurrentBlock() uint8 { return s.block }

// Buffered returns the number of received bytes not yet read through
// the data register.
func (s *Session) Buffered() int { return s.wr - s.rd }

// Status summarises the session for monitor dumps.
func (s *Session) Status() string {
	state := "disconnected"
	if s.IsConnected() {
		state = "connected"
	}
	dir := "loading"
	if s.pageReady() {
		dir = "ready"
	}
	return fmt.Sprintf("%s %s, block $%02X, page $%02X (%s), %02X avail bytes",
		state, s.host, s.block, s.pageIndex(), dir, s.Buffered())
}

// ── internal ─────────────────────────────────────────────────────────

func (s *Session) init(ctx context.Context, host string) {
	s.host = host
	s.rd, s.wr = 0, 0
	s.block = SystemBlock
	s.page = pageReady

	s.log.Info("connect: %s", host)
	if err := s.connect(ctx); err != nil {
		s.log.Error("cannot open connection to %s: %v", host, err)
		s.opts.Metrics.RecordError(err.Error())
		return
	}
	s.opts.Metrics.Connected()

	s.page &^= pageReady
	s.loadBlock(SystemBlock)
	s.page |= pageReady
}

func (s *Session) connect(ctx context.Context) error {
	dial := s.opts.Connect
	if dial == nil {
		dial = s.dialLink
	}

	return retry.Connect(s.opts.ConnectAttempts).Do(ctx, func(attempt int) error {
		if attempt > 1 {
			s.log.Verbose("connect attempt %d to %s", attempt, s.host)
		}
		w, err := dial(ctx, s.host)
		if err != nil {
			if ncerr.Is(err, ncerr.ErrBadHost) {
				err = fmt.Errorf("%w (should be host:port)", err)
				return retry.Permanent(err)
			}
			return err
		}
		s.wire = w
		return nil
	})
}

func (s *Session) dialLink(ctx context.Context, host string) (Wire, error) {
	d := s.opts.Dialer
	if d == nil {
		timeout := s.opts.ConnectTimeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		d = &transport.TCPDialer{Timeout: timeout, NoDelay: true}
	}
	return transport.Connect(ctx, d, host, transport.LinkOptions{
		ReceiveTimeout: s.opts.TransferTimeout,
		Logger:         s.log.Named("link"),
		Metrics:        s.opts.Metrics,
	})
}

// disconnect closes the wire and marks the session disconnected.
func (s *Session) disconnect() {
	if s.wire == nil {
		return
	}
	if err := s.wire.Close(); err != nil {
		s.log.Warn("close: %v", err)
	}
	s.wire = nil
	s.opts.Metrics.Disconnected()
}

// transportFailure logs a recoverable wire error and degrades the
// session to disconnected.
func (s *Session) transportFailure(op string, err error) {
	s.log.Error("%s: %v", op, err)
	s.opts.Metrics.RecordError(err.Error())
	s.disconnect()
}

// fatal escalates a protocol violation.
func (s *Session) fatal(err error) {
	s.opts.Metrics.ProtocolFault(err.Error())
	if s.opts.Fatal != nil {
		s.opts.Fatal(err)
		return
	}
	s.log.Error("%+v", err)
	panic(err)
}
