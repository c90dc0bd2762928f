// Package metrics provides lightweight, lock-free counters for tracking
// what a cartridge session did with its peer.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one cartridge.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	connects       atomic.Int64
	disconnects    atomic.Int64
	resets         atomic.Int64
	bytesIn        atomic.Int64
	bytesOut       atomic.Int64
	blocksLoaded   atomic.Int64
	systemReloads  atomic.Int64
	pagesReceived  atomic.Int64
	protocolFaults atomic.Int64
	errorsTotal    atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastBlock    int
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now(), lastBlock: -1}
}

// ── Connection metrics ───────────────────────────────────────────────

// Connected records a successful connect to the peer.
func (c *Collector) Connected() {
	if c == nil {
		return
	}
	c.connects.Add(1)
}

// Disconnected records the session dropping its connection.
func (c *Collector) Disconnected() {
	if c == nil {
		return
	}
	c.disconnects.Add(1)
}

// Reset records a session reset.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.resets.Add(1)
}

// Connects returns the number of successful connects.
func (c *Collector) Connects() int64 {
	if c == nil {
		return 0
	}
	return c.connects.Load()
}

// Disconnects returns the number of dropped connections.
func (c *Collector) Disconnects() int64 {
	if c == nil {
		return 0
	}
	return c.disconnects.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from the peer.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to the peer.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Block transfer metrics ───────────────────────────────────────────

// BlockLoaded records a completed block switch.
func (c *Collector) BlockLoaded(id uint8) {
	if c == nil {
		return
	}
	c.blocksLoaded.Add(1)
	c.mu.Lock()
	c.lastBlock = int(id)
	c.mu.Unlock()
}

// SystemReloaded records a completed system block refresh.
func (c *Collector) SystemReloaded() {
	if c == nil {
		return
	}
	c.systemReloads.Add(1)
}

// PageReceived records one 256-byte page landing in the cache.
func (c *Collector) PageReceived() {
	if c == nil {
		return
	}
	c.pagesReceived.Add(1)
}

// BlocksLoaded returns the number of completed block switches.
func (c *Collector) BlocksLoaded() int64 {
	if c == nil {
		return 0
	}
	return c.blocksLoaded.Load()
}

// SystemReloads returns the number of system block refreshes.
func (c *Collector) SystemReloads() int64 {
	if c == nil {
		return 0
	}
	return c.systemReloads.Load()
}

// PagesReceived returns the number of pages received.
func (c *Collector) PagesReceived() int64 {
	if c == nil {
		return 0
	}
	return c.pagesReceived.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ProtocolFault records a protocol violation.  It also counts as an
// error.
func (c *Collector) ProtocolFault(msg string) {
	if c == nil {
		return
	}
	c.protocolFaults.Add(1)
	c.RecordError(msg)
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	Connects         int64  `json:"connects"`
	Disconnects      int64  `json:"disconnects"`
	Resets           int64  `json:"resets"`
	BytesIn          int64  `json:"bytes_in"`
	BytesOut         int64  `json:"bytes_out"`
	BlocksLoaded     int64  `json:"blocks_loaded"`
	SystemReloads    int64  `json:"system_reloads"`
	PagesReceived    int64  `json:"pages_received"`
	ProtocolFaults   int64  `json:"protocol_faults"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastBlock        int    `json:"last_block"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{LastBlock: -1}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:         time.Since(c.startTime).Truncate(time.Second).String(),
		Connects:       c.connects.Load(),
		Disconnects:    c.disconnects.Load(),
		Resets:         c.resets.Load(),
		BytesIn:        c.bytesIn.Load(),
		BytesOut:       c.bytesOut.Load(),
		BlocksLoaded:   c.blocksLoaded.Load(),
		SystemReloads:  c.systemReloads.Load(),
		PagesReceived:  c.pagesReceived.Load(),
		ProtocolFaults: c.protocolFaults.Load(),
		ErrorsTotal:    c.errorsTotal.Load(),
		LastBlock:      c.lastBlock,
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
