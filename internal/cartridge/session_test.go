package cartridge

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	ncerr "iduncart/internal/errors"
	"iduncart/internal/metrics"
	"iduncart/util"
)

func TestAttach_LoadsSystemBlock(t *testing.T) {
	w := &fakeWire{}
	w.queue(fill(0x00))

	s := Attach(context.Background(), "peer:25232", Options{
		Connect: func(context.Context, string) (Wire, error) { return w, nil },
	})

	if !s.IsConnected() {
		t.Fatal("session should be connected")
	}
	if s.CurrentBlock() != SystemBlock {
		t.Errorf("block = $%02X, want system block", s.CurrentBlock())
	}
	if s.PageSelect()&pageReady == 0 {
		t.Error("page should be ready after attach")
	}
	assertFrames(t, w.frames(),
		[]byte{0x20, 0x7F, 0xFC, 0xFF},
		[]byte{0x40, 0x7F},
		[]byte{0x5F},
		[]byte{0x5F},
	)
}

func TestAttach_Unreachable(t *testing.T) {
	env := &testEnv{m: metrics.New(), dialErr: fmt.Errorf("connection refused")}
	logger := util.NewLogger(1)
	var logs bytes.Buffer
	logger.SetOutput(&logs)

	s := Attach(context.Background(), "peer:25232", env.options(logger))

	if s.IsConnected() {
		t.Fatal("session should be disconnected")
	}
	if !strings.Contains(logs.String(), "cannot open connection") {
		t.Errorf("failure not logged:\n%s", logs.String())
	}
	// Present but empty.
	if got := s.Probe(); got != ProbeID {
		t.Errorf("probe = $%02X", got)
	}
	if got := s.ReadData(); got != NoData {
		t.Errorf("read = $%02X, want no-data", got)
	}
	if got := s.AvailableCount(); got != 0 {
		t.Errorf("count = %d, want 0", got)
	}
	s.WriteData('A')
	s.WriteBlockRegister(3)
	if s.CurrentBlock() != 3 {
		t.Errorf("block register should still latch, got $%02X", s.CurrentBlock())
	}
	if env.m.ErrorCount() != 1 {
		t.Errorf("errors = %d, want 1", env.m.ErrorCount())
	}
}

func TestAttach_BadHostNotRetried(t *testing.T) {
	env := &testEnv{dialErr: fmt.Errorf("%w %q", ncerr.ErrBadHost, "nope")}
	opts := env.options(util.NewLogger(0))
	opts.ConnectAttempts = 5
	opts.Logger.SetOutput(&bytes.Buffer{})

	s := Attach(context.Background(), "nope", opts)
	if s.IsConnected() {
		t.Fatal("bad host should not connect")
	}
	if env.dials != 1 {
		t.Errorf("dials = %d, want 1", env.dials)
	}
}

func TestAttach_RetriesTransientFailure(t *testing.T) {
	w := &fakeWire{}
	w.queue()
	dials := 0
	s := Attach(context.Background(), "peer:25232", Options{
		ConnectAttempts: 3,
		Connect: func(context.Context, string) (Wire, error) {
			dials++
			if dials < 2 {
				return nil, ncerr.Wrap("dial", "peer:25232", fmt.Errorf("connection refused"))
			}
			return w, nil
		},
	})
	if !s.IsConnected() {
		t.Fatal("second attempt should connect")
	}
	if dials != 2 {
		t.Errorf("dials = %d, want 2", dials)
	}
}

func TestDestroy_Twice(t *testing.T) {
	env := attach(t)

	env.s.Destroy()
	if env.s.IsConnected() || !env.w.closed {
		t.Fatal("destroy should close the wire")
	}
	env.s.Destroy()
	if !strings.Contains(env.log.String(), "non-open connection") {
		t.Errorf("second destroy should warn:\n%s", env.log.String())
	}
	if env.m.Disconnects() != 1 {
		t.Errorf("disconnects = %d, want 1", env.m.Disconnects())
	}
}

func TestReset_Reconnects(t *testing.T) {
	env := attach(t)
	env.w.queue(fill(7))
	env.s.WriteBlockRegister(7)
	env.w.frames()

	old := env.w
	env.w = &fakeWire{}
	env.w.queue(ramp(1))
	env.s.Reset(context.Background(), "other:1")

	if !old.closed {
		t.Error("old wire should be closed")
	}
	if env.s.Host() != "other:1" || env.hosts[len(env.hosts)-1] != "other:1" {
		t.Errorf("host = %s, dialled %v", env.s.Host(), env.hosts)
	}
	if env.s.CurrentBlock() != SystemBlock {
		t.Errorf("block = $%02X, want system block", env.s.CurrentBlock())
	}
	if got := env.s.WindowRead(0x010); got != 1+0x10 {
		t.Errorf("system page byte = $%02X", got)
	}
	if env.m.Connects() != 2 {
		t.Errorf("connects = %d, want 2", env.m.Connects())
	}
}

func TestReset_ClearsReceiveBuffer(t *testing.T) {
	env := attach(t)
	env.w.in = []byte("abc")
	env.s.AvailableCount()

	env.w = &fakeWire{}
	env.w.queue()
	env.s.Reset(context.Background(), "peer:25232")
	if env.s.Buffered() != 0 {
		t.Errorf("buffered = %d after reset", env.s.Buffered())
	}
}

func TestStatus(t *testing.T) {
	env := attach(t)
	env.w.in = []byte("hello")
	env.s.AvailableCount()

	got := env.s.Status()
	for _, want := range []string{"connected", "peer:25232", "block $FF", "05 avail bytes"} {
		if !strings.Contains(got, want) {
			t.Errorf("status %q missing %q", got, want)
		}
	}

	env.s.Destroy()
	if !strings.HasPrefix(env.s.Status(), "disconnected") {
		t.Errorf("status = %q", env.s.Status())
	}
}
