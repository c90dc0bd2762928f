package peer

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"iduncart/util"
)

// startServer serves on a loopback port and returns a client
// connection to it.
func startServer(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	if srv.Logger == nil {
		l := util.NewLogger(0)
		l.SetOutput(io.Discard)
		srv.Logger = l
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("server did not shut down")
		}
	})

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.SetDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readN(t *testing.T, r io.Reader, n int) []byte {
	t.Helper()
	p := make([]byte, n)
	if _, err := io.ReadFull(r, p); err != nil {
		t.Fatalf("read %d: %v", n, err)
	}
	return p
}

func TestServer_LoadBlock(t *testing.T) {
	store := memStore(t)
	data := make([]byte, 2*PageSize+10)
	for i := range data {
		data[i] = byte(i * 3)
	}
	store.Put(0x12, data) //nolint:errcheck

	conn := startServer(t, &Server{Store: store})

	conn.Write([]byte{0x20, 0x7F, 0xFC, 0x12}) //nolint:errcheck
	conn.Write([]byte{0x40, 0x7F})             //nolint:errcheck
	if n := readN(t, conn, 1)[0]; n != 3 {
		t.Fatalf("page count = %d, want 3", n)
	}
	var got []byte
	for i := 0; i < 3; i++ {
		got = append(got, readN(t, conn, PageSize)...)
		conn.Write([]byte{0x5F}) //nolint:errcheck
		if i < 2 {
			conn.Write([]byte{0x40, 0x7F}) //nolint:errcheck
		}
	}
	conn.Write([]byte{0x5F}) //nolint:errcheck

	if !bytes.Equal(got[:len(data)], data) {
		t.Error("block data mismatch")
	}
	if !bytes.Equal(got[len(data):], make([]byte, 3*PageSize-len(data))) {
		t.Error("padding should be zero")
	}
}

func TestServer_MissingBlockHasNoPages(t *testing.T) {
	conn := startServer(t, &Server{Store: memStore(t)})

	conn.Write([]byte{0x20, 0x7F, 0xFC, 0x99, 0x40, 0x7F}) //nolint:errcheck
	if n := readN(t, conn, 1)[0]; n != 0 {
		t.Fatalf("page count = %d, want 0", n)
	}
	conn.Write([]byte{0x5F}) //nolint:errcheck

	// Still serving afterwards: the echo handler answers.
	conn.Write([]byte("ok")) //nolint:errcheck
	if got := string(readN(t, conn, 2)); got != "ok" {
		t.Errorf("echo = %q", got)
	}
}

func TestServer_Freemap(t *testing.T) {
	store := memStore(t)
	store.Put(3, []byte{1}) //nolint:errcheck
	conn := startServer(t, &Server{Store: store})

	conn.Write([]byte{0x20, 0x7F, 0xF7, 0xFF, 0x40, 0x7F}) //nolint:errcheck
	if n := readN(t, conn, 1)[0]; n != 1 {
		t.Fatalf("page count = %d, want 1", n)
	}
	page := readN(t, conn, PageSize)
	conn.Write([]byte{0x5F, 0x5F}) //nolint:errcheck
	if page[3] != 0x00 || page[4] != 0xFF {
		t.Errorf("freemap bytes = $%02X $%02X", page[3], page[4])
	}
}

func TestServer_EchoData(t *testing.T) {
	conn := startServer(t, &Server{})

	// $20 and $40 not followed by the channel byte are plain data.
	msg := []byte("HELLO @ WORLD_")
	conn.Write(msg) //nolint:errcheck
	if got := readN(t, conn, len(msg)); !bytes.Equal(got, msg) {
		t.Errorf("echo = %q", got)
	}
}

func TestServer_LoneFramePrefixIsData(t *testing.T) {
	conn := startServer(t, &Server{FrameWait: 10 * time.Millisecond})

	conn.Write([]byte{0x20}) //nolint:errcheck
	if got := readN(t, conn, 1); got[0] != 0x20 {
		t.Errorf("echo = % X", got)
	}
}

func TestServer_BadFrameDropsConnection(t *testing.T) {
	store := memStore(t)
	store.Put(1, []byte{1}) //nolint:errcheck
	conn := startServer(t, &Server{Store: store})

	conn.Write([]byte{0x20, 0x7F, 0xFC, 0x01, 0x40, 0x7F}) //nolint:errcheck
	readN(t, conn, 1+PageSize)
	conn.Write([]byte{0x99}) //nolint:errcheck // not a release

	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("peer should hang up on a bad frame")
	}
}

func TestServer_KeepOpen(t *testing.T) {
	l := util.NewLogger(0)
	l.SetOutput(io.Discard)
	srv := &Server{KeepOpen: true, Logger: l}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, ln) //nolint:errcheck

	for i := 0; i < 3; i++ {
		conn, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		conn.SetDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
		conn.Write([]byte("x"))                           //nolint:errcheck
		if got := readN(t, conn, 1); got[0] != 'x' {
			t.Errorf("conn %d echo = %q", i, got)
		}
		conn.Close()
	}
}

func TestExec_Handler(t *testing.T) {
	conn := startServer(t, &Server{Handler: &Exec{Command: "read line; echo got:$line"}})

	conn.Write([]byte("ping\n")) //nolint:errcheck
	got := string(readN(t, conn, len("got:ping\n")))
	if !strings.HasPrefix(got, "got:ping") {
		t.Errorf("exec output = %q", got)
	}
}

func TestExec_NoCommand(t *testing.T) {
	err := (&Exec{}).Handle(context.Background(), &Channel{Logger: util.NewLogger(0)})
	if err == nil {
		t.Error("expected error without a command")
	}
}
