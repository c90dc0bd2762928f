package core

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"iduncart/internal/cartridge"
	ncerr "iduncart/internal/errors"
	"iduncart/util"
)

// windowBase is where the page window appears on the C64 bus (IO2).
const windowBase = 0xDF00

// AttachMode attaches the cartridge, drives its registers the way a
// C64 program would, and prints what it sees.  In order: select Block
// (if set), hexdump each of Pages through the window, write Send to the
// data register, collect data channel replies for Wait, print the
// device dumps.
type AttachMode struct {
	Cartridge *cartridge.Cartridge
	Block     *uint8
	Pages     []int
	Send      []byte
	Wait      time.Duration
	Dump      bool
	Logger    *util.Logger
	stdio
}

func (m *AttachMode) String() string {
	var steps []string
	steps = append(steps, "attach cartridge to "+m.Cartridge.Host())
	if m.Block != nil {
		steps = append(steps, fmt.Sprintf("select block $%02X", *m.Block))
	}
	if len(m.Pages) > 0 {
		steps = append(steps, fmt.Sprintf("dump pages %v", m.Pages))
	}
	if len(m.Send) > 0 {
		steps = append(steps, fmt.Sprintf("send %d bytes", len(m.Send)))
	}
	if len(m.Send) > 0 || m.Wait > 0 {
		steps = append(steps, fmt.Sprintf("read replies for %v", m.Wait))
	}
	if m.Dump {
		steps = append(steps, "print device dumps")
	}
	return strings.Join(steps, ", ")
}

// Run performs the attach sequence.  A peer that cannot be reached
// still gets the full sequence against the present-but-empty
// cartridge; Run then reports errors.ErrNotConnected.
func (m *AttachMode) Run(ctx context.Context) error {
	s := m.Cartridge.Attach(ctx)
	defer m.Cartridge.Detach()

	dev, _ := m.Cartridge.Devices()
	out := m.stdout()

	if m.Block != nil {
		m.Logger.Verbose("select block $%02X", *m.Block)
		dev.Control.Store(cartridge.RegBlock, *m.Block)
	}

	for _, p := range m.Pages {
		dev.Control.Store(cartridge.RegPage, uint8(p))
		page := make([]byte, cartridge.PageSize)
		for i := range page {
			page[i] = dev.Window.Read(uint16(i))
		}
		fmt.Fprintf(out, "block $%02X page $%02X\n", s.CurrentBlock(), p)
		io.WriteString(out, util.HexDump(windowBase, page)) //nolint:errcheck
	}

	for _, b := range m.Send {
		dev.Data.Store(cartridge.RegData, b)
	}
	if len(m.Send) > 0 || m.Wait > 0 {
		if err := drain(ctx, dev.Data, out, m.Wait); err != nil {
			return err
		}
	}

	if m.Dump {
		for _, d := range []cartridge.Device{dev.IO1, dev.Control, dev.Window} {
			fmt.Fprintf(out, "%s: %s\n", d.Name(), d.Dump())
		}
	}

	if !s.IsConnected() {
		return fmt.Errorf("cartridge at %s: %w", s.Host(), ncerr.ErrNotConnected)
	}
	return nil
}

// drain copies data channel bytes to w until wait has passed with
// nothing arriving, polling the count register like a C64 read loop.
func drain(ctx context.Context, data cartridge.Device, w io.Writer, wait time.Duration) error {
	const pollInterval = 2 * time.Millisecond

	idle := time.NewTimer(wait)
	defer idle.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()

	buf := make([]byte, 0, cartridge.RecvBufSize)
	for {
		buf = buf[:0]
		for n := data.Read(cartridge.RegCount); n > 0; n-- {
			buf = append(buf, data.Read(cartridge.RegData))
		}
		if len(buf) > 0 {
			if _, err := w.Write(buf); err != nil {
				return err
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(wait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
			return nil
		case <-tick.C:
		}
	}
}
