// Package peer simulates the coprocessor side of the cartridge link:
// it answers block requests from a BlockStore and hands the data
// channel to a Handler.
package peer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/spf13/afero"

	"iduncart/util"
)

// Frame bytes, mirrored from the cartridge side.
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

// Server accepts cartridge connections.  With KeepOpen it serves each
// connection on its own goroutine until ctx ends; otherwise it serves
// one connection and returns.
type Server struct {
	Store    *BlockStore // default empty
	Handler  Handler     // default Echo
	KeepOpen bool
	Logger   *util.Logger

	// FrameWait is how long a byte that may start a frame waits for
	// the channel byte that confirms it (default 50ms).  The cartridge
	// sends each frame in one write, so a lone $20 or $40 is data.
	FrameWait time.Duration
}

// ListenAndServe listens on addr ("host:port") and serves.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.  It closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	s.logger().Verbose("listening on %s", ln.Addr())

	// Shut the listener down when the context expires.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		s.logger().Verbose("cartridge connected from %s", nc.RemoteAddr())

		if !s.KeepOpen {
			return s.serveConn(ctx, nc)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.serveConn(ctx, nc); err != nil {
				s.logger().Warn("%s: %v", nc.RemoteAddr(), err)
			}
		}()
	}
}

func (s *Server) logger() *util.Logger {
	if s.Logger == nil {
		s.Logger = util.NewLogger(0)
	}
	return s.Logger
}

func (s *Server) store() *BlockStore {
	if s.Store == nil {
		s.Store = NewBlockStore(afero.NewMemMapFs(), "/")
	}
	return s.Store
}

// ── per connection ───────────────────────────────────────────────────

type conn struct {
	srv *Server
	nc  net.Conn
	r   *bufio.Reader
	wmu sync.Mutex // held by handler writes and whole transfers
	log *util.Logger

	dataClosed bool // handler stopped reading
}

func (s *Server) serveConn(ctx context.Context, nc net.Conn) error {
	defer nc.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock the reader when ctx ends.
	go func() {
		<-ctx.Done()
		nc.Close()
	}()

	c := &conn{
		srv: s,
		nc:  nc,
		r:   bufio.NewReaderSize(nc, util.DefaultBufSize),
		log: s.logger().Named("peer"),
	}

	handler := s.Handler
	if handler == nil {
		handler = Echo{}
	}
	pr, pw := io.Pipe()
	ch := &Channel{In: pr, Out: lockedWriter{mu: &c.wmu, w: nc}, Logger: c.log}

	done := make(chan error, 1)
	go func() {
		err := handler.Handle(ctx, ch)
		pr.Close()
		done <- err
	}()

	err := c.readLoop(pw)
	pw.CloseWithError(err)
	if herr := <-done; herr != nil && !util.IsHarmless(herr) {
		c.log.Verbose("handler: %v", herr)
	}
	c.log.Verbose("cartridge %s disconnected", nc.RemoteAddr())
	if util.IsHarmless(err) {
		return nil
	}
	return err
}

// readLoop splits the cartridge's byte stream into frames and data.
func (c *conn) readLoop(data io.Writer) error {
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return err
		}

		if (b == cmdPrefix || b == listenBusy) && c.framed() {
			c.r.ReadByte() //nolint:errcheck // peeked
			if b == cmdPrefix {
				err = c.command()
			} else {
				c.log.Debug("address without command")
				err = c.serve(nil, true)
			}
			if err != nil {
				return err
			}
			continue
		}

		c.data(data, b)
	}
}

// framed reports whether the next byte is the channel byte, waiting at
// most FrameWait for it to arrive.
func (c *conn) framed() bool {
	if c.r.Buffered() == 0 {
		wait := c.srv.FrameWait
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		c.nc.SetReadDeadline(time.Now().Add(wait)) //nolint:errcheck
		defer c.nc.SetReadDeadline(time.Time{})    //nolint:errcheck
	}
	p, err := c.r.Peek(1)
	return err == nil && p[0] == channel
}

func (c *conn) data(w io.Writer, b byte) {
	if c.dataClosed {
		return
	}
	if _, err := w.Write([]byte{b}); err != nil {
		c.log.Debug("handler gone, dropping data: %v", err)
		c.dataClosed = true
	}
}

// command reads the rest of a command frame and runs the transfer it
// asks for.  Loading the system block serves the free map, same as
// the freemap command.  Unknown opcodes are logged and ignored.
func (c *conn) command() error {
	var hdr [2]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	op, id := hdr[0], hdr[1]

	var (
		pages [][]byte
		err   error
	)
	switch {
	case op == opLoadBlock && id != SystemBlock:
		pages, err = c.srv.store().Pages(id)
		c.log.Verbose("load block $%02X: %d pages", id, len(pages))
	case op == opLoadBlock, op == opFreemap:
		pages, err = c.srv.store().FreeMap()
		c.log.Verbose("freemap: %d pages", len(pages))
	default:
		c.log.Warn("unknown command $%02X (block $%02X)", op, id)
		return nil
	}
	if err != nil {
		c.log.Error("%v", err)
		pages = nil
	}
	return c.serve(pages, false)
}

// serve runs the page handshake for pages.  addressed is set when the
// first address frame has already been consumed.
func (c *conn) serve(pages [][]byte, addressed bool) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if !addressed {
		if err := c.expect("address", frameAddress); err != nil {
			return err
		}
	}
	if _, err := c.nc.Write([]byte{byte(len(pages))}); err != nil {
		return fmt.Errorf("page count: %w", err)
	}
	for i, p := range pages {
		if _, err := c.nc.Write(p); err != nil {
			return fmt.Errorf("page %d: %w", i, err)
		}
		if err := c.expect("release", frameRelease); err != nil {
			return err
		}
		if i < len(pages)-1 {
			if err := c.expect("address", frameAddress); err != nil {
				return err
			}
		}
	}
	return c.expect("release", frameRelease)
}

func (c *conn) expect(name string, frame []byte) error {
	got := make([]byte, len(frame))
	if _, err := io.ReadFull(c.r, got); err != nil {
		return fmt.Errorf("%s frame: %w", name, err)
	}
	if !bytes.Equal(got, frame) {
		return fmt.Errorf("%s frame: got % X, want % X", name, got, frame)
	}
	return nil
}
