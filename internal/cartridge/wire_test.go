package cartridge

import (
	"bytes"
	"context"
	"io"
	"testing"

	ncerr "iduncart/internal/errors"
	"iduncart/internal/metrics"
	"iduncart/util"
)

// fakeWire is a scripted Wire.  Bytes queued in "in" are what the peer
// has sent; every Send is recorded.
type fakeWire struct {
	in      []byte
	sent    [][]byte
	sendErr error // returned by every Send once set
	recvErr error // returned by ReceiveFull instead of a short read
	maxRecv int   // caps a single Receive (0 = no cap)

	receives int
	closed   bool
}

func (w *fakeWire) Send(p []byte) (int, error) {
	if w.closed {
		return 0, ncerr.ErrNotConnected
	}
	if w.sendErr != nil {
		return 0, w.sendErr
	}
	w.sent = append(w.sent, append([]byte(nil), p...))
	return len(p), nil
}

func (w *fakeWire) PollReady() bool { return !w.closed && len(w.in) > 0 }

func (w *fakeWire) Receive(p []byte) (int, error) {
	w.receives++
	if len(w.in) == 0 {
		return 0, io.EOF
	}
	if w.maxRecv > 0 && len(p) > w.maxRecv {
		p = p[:w.maxRecv]
	}
	n := copy(p, w.in)
	w.in = w.in[n:]
	return n, nil
}

func (w *fakeWire) ReceiveFull(p []byte) (int, error) {
	n := copy(p, w.in)
	w.in = w.in[n:]
	if n == len(p) {
		return n, nil
	}
	if w.recvErr != nil {
		return n, w.recvErr
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, io.ErrUnexpectedEOF
}

func (w *fakeWire) Close() error {
	if w.closed {
		return ncerr.ErrNotConnected
	}
	w.closed = true
	return nil
}

// queue appends the peer's answer to one fetch: a page count followed
// by the pages.
func (w *fakeWire) queue(pages ...[]byte) {
	w.in = append(w.in, byte(len(pages)))
	for _, p := range pages {
		w.in = append(w.in, p...)
	}
}

// frames returns the recorded sends and forgets them.
func (w *fakeWire) frames() [][]byte {
	f := w.sent
	w.sent = nil
	return f
}

func fill(b byte) []byte { return bytes.Repeat([]byte{b}, PageSize) }

func ramp(seed byte) []byte {
	p := make([]byte, PageSize)
	for i := range p {
		p[i] = seed + byte(i)
	}
	return p
}

func quietLogger() *util.Logger {
	l := util.NewLogger(0)
	l.SetOutput(io.Discard)
	return l
}

type testEnv struct {
	s       *Session
	w       *fakeWire
	m       *metrics.Collector
	log     *bytes.Buffer
	dials   int
	hosts   []string
	fatals  []error
	dialErr error
}

// attach returns a session connected to a fake wire that has already
// answered the system block load with no pages.
func attach(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{m: metrics.New(), log: &bytes.Buffer{}}
	logger := util.NewLogger(3)
	logger.SetOutput(env.log)
	logger.SetTimestamps(false)

	env.w = &fakeWire{}
	env.w.queue()
	env.s = Attach(context.Background(), "peer:25232", env.options(logger))
	env.w.frames()
	return env
}

func (env *testEnv) options(logger *util.Logger) Options {
	return Options{
		Connect: func(_ context.Context, host string) (Wire, error) {
			env.dials++
			env.hosts = append(env.hosts, host)
			if env.dialErr != nil {
				return nil, env.dialErr
			}
			return env.w, nil
		},
		Fatal:   func(err error) { env.fatals = append(env.fatals, err) },
		Logger:  logger,
		Metrics: env.m,
	}
}

func assertFrames(t *testing.T, got [][]byte, want ...[]byte) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("sent %d frames % X, want %d % X", len(got), got, len(want), want)
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("frame %d = % X, want % X", i, got[i], want[i])
		}
	}
}
