package core

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"iduncart/internal/cartridge"
	ncerr "iduncart/internal/errors"
	"iduncart/util"
)

// EscapeByte (Ctrl-]) leaves terminal mode.
const EscapeByte = 0x1D

// flushWait is how long output is still collected after stdin ends.
const flushWait = 250 * time.Millisecond

// TerminalMode bridges the local terminal to the cartridge's data
// channel: keystrokes go to the data register, whatever the peer
// sends is printed.  It is the C64 side of a coprocessor app.
//
// Only the Run goroutine touches the cartridge; a helper goroutine
// reads stdin.
type TerminalMode struct {
	Cartridge *cartridge.Cartridge
	Logger    *util.Logger
	// Poll is how often the count register is read (default 5ms).
	Poll time.Duration
	stdio
}

func (m *TerminalMode) String() string {
	return "attach cartridge to " + m.Cartridge.Host() + ", bridge terminal to the data channel (Ctrl-] exits)"
}

func (m *TerminalMode) Run(ctx context.Context) error {
	s := m.Cartridge.Attach(ctx)
	defer m.Cartridge.Detach()
	if !s.IsConnected() {
		return fmt.Errorf("cartridge at %s: %w", s.Host(), ncerr.ErrNotConnected)
	}
	dev, _ := m.Cartridge.Devices()

	// Releases the stdin reader once Run returns.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if f, ok := m.stdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		old, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return fmt.Errorf("raw mode: %w", err)
		}
		defer term.Restore(int(f.Fd()), old) //nolint:errcheck
		m.Logger.Info("connected to %s, Ctrl-] to exit\r", s.Host())
	}

	keys := make(chan []byte)
	inErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := m.stdin().Read(buf)
			if n > 0 {
				p := append([]byte(nil), buf[:n]...)
				select {
				case keys <- p:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				inErr <- err
				return
			}
		}
	}()

	poll := m.Poll
	if poll <= 0 {
		poll = 5 * time.Millisecond
	}
	tick := time.NewTicker(poll)
	defer tick.Stop()

	out := m.stdout()
	buf := make([]byte, 0, cartridge.RecvBufSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-inErr:
			if util.IsHarmless(err) {
				// Stdin closed: flush what the peer still sends.
				return drain(ctx, dev.Data, out, flushWait)
			}
			return err
		case p := <-keys:
			for _, b := range p {
				if b == EscapeByte {
					return nil
				}
				dev.Data.Store(cartridge.RegData, b)
			}
		case <-tick.C:
		}

		if !s.IsConnected() {
			return fmt.Errorf("cartridge at %s: %w", s.Host(), ncerr.ErrNotConnected)
		}
		buf = buf[:0]
		for n := dev.Data.Read(cartridge.RegCount); n > 0; n-- {
			buf = append(buf, dev.Data.Read(cartridge.RegData))
		}
		if len(buf) > 0 {
			if _, err := out.Write(buf); err != nil {
				return err
			}
		}
	}
}
