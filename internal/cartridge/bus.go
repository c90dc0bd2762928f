package cartridge

import (
	"fmt"
	"sync"

	ncerr "iduncart/internal/errors"
)

// Device is one address sub-range of the cartridge as seen by the
// emulator's bus glue.  Addresses are relative to the start of the
// range; the glue guarantees they lie inside it.  A device handed an
// address outside its range panics with *errors.PreconditionError.
type Device interface {
	Name() string
	Range() (lo, hi uint16)
	Read(addr uint16) uint8
	Store(addr uint16, b uint8)
	Dump() string
}

// Register offsets within IO1.
const (
	RegData  = 0x00
	RegCount = 0x01
	RegProbe = 0x02
	RegPage  = 0xFE
	RegBlock = 0xFF
)

func assertRange(d Device, addr uint16) {
	lo, hi := d.Range()
	if addr < lo || addr > hi {
		panic(&ncerr.PreconditionError{Device: d.Name(), Addr: addr, Lo: lo, Hi: hi})
	}
}

// port is what every device holds: the session and, for devices handed
// out by a Cartridge, the lock its lifecycle methods take.
type port struct {
	s  *Session
	mu sync.Locker
}

func (p port) lock() (unlock func()) {
	if p.mu == nil {
		return func() {}
	}
	p.mu.Lock()
	return p.mu.Unlock
}

// ── data port ────────────────────────────────────────────────────────

// DataPort is the byte-stream channel: data, count and probe registers.
type DataPort struct{ port }

func (d DataPort) Name() string { return "idun-data" }
func (d DataPort) Range() (uint16, uint16) { return RegData, RegProbe }

func (d DataPort) Read(addr uint16) uint8 {
	assertRange(d, addr)
	defer d.lock()()
	switch addr {
	case RegData:
		return d.s.ReadData()
	case RegCount:
		return d.s.AvailableCount()
	default:
		return d.s.Probe()
	}
}

// Store writes to the data register.  The count and probe registers
// are read-only.
func (d DataPort) Store(addr uint16, b uint8) {
	assertRange(d, addr)
	defer d.lock()()
	if addr == RegData {
		d.s.WriteData(b)
	}
}

func (d DataPort) Dump() string {
	defer d.lock()()
	return d.s.Status()
}

// ── control port ─────────────────────────────────────────────────────

// ControlPort holds the page selector and the write-only block
// selector.
type ControlPort struct{ port }

func (c ControlPort) Name() string { return "idun-control" }
func (c ControlPort) Range() (uint16, uint16) { return RegPage, RegBlock }

func (c ControlPort) Read(addr uint16) uint8 {
	assertRange(c, addr)
	defer c.lock()()
	if addr == RegPage {
		return c.s.ReadPageRegister()
	}
	return WindowSentinel
}

func (c ControlPort) Store(addr uint16, b uint8) {
	assertRange(c, addr)
	defer c.lock()()
	if addr == RegPage {
		c.s.WritePageRegister(b)
		return
	}
	c.s.WriteBlockRegister(b)
}

func (c ControlPort) Dump() string {
	defer c.lock()()
	return fmt.Sprintf("block $%02X, page select $%02X", c.s.CurrentBlock(), c.s.PageSelect())
}

// ── page window ──────────────────────────────────────────────────────

// Window exposes the selected cache page.  The 4 KiB range mirrors the
// 256-byte page.
type Window struct{ port }

func (w Window) Name() string { return "idun-window" }
func (w Window) Range() (uint16, uint16) { return 0x000, 0xFFF }

func (w Window) Read(addr uint16) uint8 {
	assertRange(w, addr)
	defer w.lock()()
	return w.s.WindowRead(addr)
}

func (w Window) Store(addr uint16, b uint8) {
	assertRange(w, addr)
	defer w.lock()()
	w.s.WindowStore(addr, b)
}

func (w Window) Dump() string {
	defer w.lock()()
	dir := "loading"
	if w.s.pageReady() {
		dir = "ready"
	}
	return fmt.Sprintf("page $%02X of block $%02X (%s)", w.s.pageIndex(), w.s.CurrentBlock(), dir)
}

// ── IO1 ──────────────────────────────────────────────────────────────

// IO1 decodes the whole 256-byte IO1 page, routing register offsets to
// the data and control ports.  Unassigned offsets read as
// WindowSentinel and ignore stores.
type IO1 struct {
	data DataPort
	ctrl ControlPort
}

func (p IO1) Name() string { return "idun-io1" }
func (p IO1) Range() (uint16, uint16) { return 0x00, 0xFF }

func (p IO1) Read(addr uint16) uint8 {
	assertRange(p, addr)
	switch {
	case addr <= RegProbe:
		return p.data.Read(addr)
	case addr >= RegPage:
		return p.ctrl.Read(addr)
	}
	return WindowSentinel
}

func (p IO1) Store(addr uint16, b uint8) {
	assertRange(p, addr)
	switch {
	case addr <= RegProbe:
		p.data.Store(addr, b)
	case addr >= RegPage:
		p.ctrl.Store(addr, b)
	}
}

func (p IO1) Dump() string { return p.data.Dump() }

// Devices is the set of bus entry points over one session.
type Devices struct {
	Data    DataPort
	Control ControlPort
	Window  Window
	IO1     IO1
}

// DevicesFor returns the bus devices backed by s.  They take no lock;
// use Cartridge.Devices when another goroutine drives the lifecycle.
func DevicesFor(s *Session) Devices {
	return devicesFor(port{s: s})
}

func devicesFor(p port) Devices {
	data, ctrl := DataPort{p}, ControlPort{p}
	return Devices{
		Data:    data,
		Control: ctrl,
		Window:  Window{p},
		IO1:     IO1{data: data, ctrl: ctrl},
	}
}
