package core

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"iduncart/internal/peer"
)

// TestServeMode_RunStopsWithContext verifies the peer serves until
// its context is cancelled.
func TestServeMode_RunStopsWithContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	m := &ServeMode{
		Server: &peer.Server{
			Store:    peer.NewBlockStore(afero.NewMemMapFs(), "/eram"),
			KeepOpen: true,
			Logger:   quietLogger(),
		},
		Address: addr,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	var conn net.Conn
	for i := 0; i < 50; i++ {
		if conn, err = net.Dial("tcp", addr); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("peer never listened: %v", err)
	}
	conn.Close()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestServeMode_String(t *testing.T) {
	m := &ServeMode{
		Server:   &peer.Server{Handler: &peer.Exec{Command: "bc"}},
		Address:  ":25232",
		BlockDir: "eram",
	}
	if got := m.String(); !strings.Contains(got, "sh -c bc") || !strings.Contains(got, ":25232") {
		t.Errorf("String() = %q", got)
	}
}
