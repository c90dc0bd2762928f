package cartridge

import (
	"context"
	"sync"

	"iduncart/util"
)

// DefaultHost is where the coprocessor's cartridge service listens
// unless configured otherwise.
const DefaultHost = "localhost:25232"

// Cartridge owns the one session of an attached cartridge.  The
// session exists from Attach until Detach; Reset replaces its
// connection in place.
//
// The lifecycle methods and the devices returned by Devices share one
// lock, so a UI goroutine may change the host while another goroutine
// drives the bus.  A bus access waits out a reset in progress.
type Cartridge struct {
	mu      sync.Mutex
	host    string
	opts    Options
	log     *util.Logger
	session *Session
}

// New returns a detached cartridge configured for host.  An empty
// host selects DefaultHost.
func New(host string, opts Options) *Cartridge {
	if host == "" {
		host = DefaultHost
	}
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(0)
	}
	return &Cartridge{host: host, opts: opts, log: opts.Logger.Named("cart")}
}

// Attach creates the session and connects it.  Attaching an attached
// cartridge does nothing.
func (c *Cartridge) Attach(ctx context.Context) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		c.log.Verbose("attach %s", c.host)
		c.session = Attach(ctx, c.host, c.opts)
	}
	return c.session
}

// Detach closes and discards the session.
func (c *Cartridge) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return
	}
	c.log.Verbose("detach")
	c.session.Destroy()
	c.session = nil

	// Tears down an SSH tunnel; the next Dial brings it back.
	if c.opts.Dialer != nil {
		if err := c.opts.Dialer.Close(); err != nil {
			c.log.Verbose("dialer: %v", err)
		}
	}
}

// Reset reconnects the attached session to the configured host and
// reloads the system block.  It does nothing while detached.
func (c *Cartridge) Reset(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		c.session.Reset(ctx, c.host)
	}
}

// SetHost changes the peer address.  An empty or unchanged host is
// ignored; a new host on an attached cartridge resets the session.
func (c *Cartridge) SetHost(ctx context.Context, host string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if host == "" || host == c.host {
		return
	}
	c.log.Info("host %s -> %s", c.host, host)
	c.host = host
	if c.session != nil {
		c.session.Reset(ctx, host)
	}
}

// Host returns the configured peer address.
func (c *Cartridge) Host() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host
}

// Attached reports whether a session exists.
func (c *Cartridge) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Session returns the current session, or nil while detached.
func (c *Cartridge) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Devices returns the bus devices of the current session, locked
// against the lifecycle methods.  ok is false while detached.
func (c *Cartridge) Devices() (d Devices, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return Devices{}, false
	}
	return devicesFor(port{s: c.session, mu: &c.mu}), true
}
