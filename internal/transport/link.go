package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	ncerr "iduncart/internal/errors"
	"iduncart/internal/metrics"
	"iduncart/util"
)

// chunkQueue is how many unread receive chunks a link holds before its
// reader goroutine stops pulling from the socket.
const chunkQueue = 16

// LinkOptions tune a Link.
type LinkOptions struct {
	// ReceiveTimeout bounds each ReceiveFull call.  Zero blocks until
	// the peer delivers or the connection fails.
	ReceiveTimeout time.Duration

	Logger  *util.Logger
	Metrics *metrics.Collector
}

// chunk is one socket read handed from the reader goroutine to the
// link's owner.  A chunk may carry both data and the error that ended
// the stream; the data is consumed first.
type chunk struct {
	buf *[]byte
	n   int
	err error
}

// Link is the wire underneath a session: synchronous send, a
// zero-timeout readiness poll, and receives that block only when
// nothing is buffered.
//
// A Link is owned by one goroutine (the one emulating the CPU).  Its
// reader goroutine only ever touches the socket and the chunk queue,
// which is what lets PollReady answer without a syscall and work over
// any net.Conn, SSH channels included.
type Link struct {
	conn   net.Conn
	addr   string
	opts   LinkOptions
	log    *util.Logger
	chunks chan chunk
	done   chan struct{}

	cur    *[]byte // pooled buffer backing rest
	rest   []byte  // received, not yet consumed
	err    error   // sticky stream error, reported once rest is drained
	closed bool
}

// Connect validates host ("host:port"), dials it with d and wraps the
// connection in a Link.  A host that does not parse yields an error
// matching errors.ErrBadHost; a failed dial yields a *NetworkError.
func Connect(ctx context.Context, d Dialer, host string, opts LinkOptions) (*Link, error) {
	if _, _, err := util.SplitHostPort(host); err != nil {
		return nil, fmt.Errorf("%w %q: %v", ncerr.ErrBadHost, host, err)
	}

	conn, err := d.Dial(ctx, "tcp", host)
	if err != nil {
		return nil, ncerr.Wrap("dial", host, err)
	}
	return NewLink(conn, host, opts), nil
}

// NewLink takes ownership of conn and starts its reader goroutine.
func NewLink(conn net.Conn, addr string, opts LinkOptions) *Link {
	log := opts.Logger
	if log == nil {
		log = util.NewLogger(0)
	}
	l := &Link{
		conn:   conn,
		addr:   addr,
		opts:   opts,
		log:    log,
		chunks: make(chan chunk, chunkQueue),
		done:   make(chan struct{}),
	}
	go l.pump()
	return l
}

// Addr returns the peer address the link was opened to.
func (l *Link) Addr() string { return l.addr }

// Send writes p to the peer.
func (l *Link) Send(p []byte) (int, error) {
	if l.closed {
		return 0, ncerr.ErrNotConnected
	}
	n, err := l.conn.Write(p)
	l.opts.Metrics.BytesSent(int64(n))
	if err != nil {
		return n, ncerr.Wrap("send", l.addr, err)
	}
	return n, nil
}

// PollReady reports, without blocking, whether a Receive would return
// immediately.  A pending stream error counts as ready so the caller
// gets to see it.
func (l *Link) PollReady() bool {
	if l.closed {
		return false
	}
	if len(l.rest) > 0 || l.err != nil {
		return true
	}
	select {
	case c := <-l.chunks:
		l.accept(c)
		return true
	default:
		return false
	}
}

// Receive performs one receive of up to len(p) bytes.  It blocks only
// if nothing is buffered.
func (l *Link) Receive(p []byte) (int, error) {
	if l.closed {
		return 0, ncerr.ErrNotConnected
	}
	if len(p) == 0 {
		return 0, nil
	}
	l.fill(nil) //nolint:errcheck // nil timeout never fires
	if len(l.rest) > 0 {
		return l.take(p), nil
	}
	return 0, ncerr.Wrap("receive", l.addr, l.err)
}

// ReceiveFull is the blocking exact-length read of the block protocol:
// it returns only once len(p) bytes arrived, the stream failed, or the
// configured ReceiveTimeout expired.  A stream that ends part way
// through reports io.ErrUnexpectedEOF, like io.ReadFull.
func (l *Link) ReceiveFull(p []byte) (int, error) {
	if l.closed {
		return 0, ncerr.ErrNotConnected
	}

	var timeout <-chan time.Time
	if l.opts.ReceiveTimeout > 0 {
		t := time.NewTimer(l.opts.ReceiveTimeout)
		defer t.Stop()
		timeout = t.C
	}

	got := 0
	for got < len(p) {
		if err := l.fill(timeout); err != nil {
			return got, ncerr.Wrap("receive", l.addr, err)
		}
		if len(l.rest) == 0 {
			err := l.err
			if errors.Is(err, io.EOF) && got > 0 {
				err = io.ErrUnexpectedEOF
			}
			return got, ncerr.Wrap("receive", l.addr, err)
		}
		got += l.take(p[got:])
	}
	return got, nil
}

// Close shuts the connection.  Closing an already-closed link returns
// errors.ErrNotConnected and is otherwise harmless.
func (l *Link) Close() error {
	if l.closed {
		return ncerr.ErrNotConnected
	}
	l.closed = true
	close(l.done)
	err := l.conn.Close()

	if l.cur != nil {
		util.PutBuf(l.cur)
		l.cur = nil
	}
	l.rest = nil
	for {
		select {
		case c := <-l.chunks:
			util.PutBuf(c.buf)
		default:
			if err != nil && !util.IsHarmless(err) {
				return ncerr.Wrap("close", l.addr, err)
			}
			return nil
		}
	}
}

// ── internal ─────────────────────────────────────────────────────────

// pump moves socket reads into the chunk queue until the stream fails
// or the link is closed.
func (l *Link) pump() {
	for {
		bp := util.GetBuf()
		n, err := l.conn.Read(*bp)
		if n == 0 {
			util.PutBuf(bp)
			bp = nil
			if err == nil {
				continue
			}
		}

		select {
		case l.chunks <- chunk{buf: bp, n: n, err: err}:
		case <-l.done:
			util.PutBuf(bp)
			return
		}
		if err != nil {
			if !util.IsHarmless(err) {
				l.log.Debug("reader for %s stopped: %v", l.addr, err)
			}
			return
		}
	}
}

// fill waits for the next chunk if nothing is buffered.  A nil timeout
// waits forever.
func (l *Link) fill(timeout <-chan time.Time) error {
	if len(l.rest) > 0 || l.err != nil {
		return nil
	}
	select {
	case c := <-l.chunks:
		l.accept(c)
		return nil
	case <-timeout:
		return ncerr.ErrTimeout
	}
}

func (l *Link) accept(c chunk) {
	if c.buf != nil {
		l.cur = c.buf
		l.rest = (*c.buf)[:c.n]
	}
	if c.err != nil {
		l.err = c.err
	}
}

func (l *Link) take(p []byte) int {
	n := copy(p, l.rest)
	l.rest = l.rest[n:]
	if len(l.rest) == 0 && l.cur != nil {
		util.PutBuf(l.cur)
		l.cur = nil
	}
	l.opts.Metrics.BytesReceived(int64(n))
	return n
}
