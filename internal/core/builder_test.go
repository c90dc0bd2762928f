package core

import (
	"strings"
	"testing"

	"iduncart/config"
	"iduncart/internal/peer"
	"iduncart/internal/transport"
	"iduncart/util"
)

// TestBuild_Attach verifies that Build produces an AttachMode for a
// plain configuration.
func TestBuild_Attach(t *testing.T) {
	cfg := config.New()
	logger := util.NewLogger(0)

	mode, err := Build(cfg, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := mode.(*AttachMode)
	if !ok {
		t.Fatalf("expected *AttachMode, got %T", mode)
	}
	if m.Block != nil {
		t.Errorf("Block = %v, want nil without -b", *m.Block)
	}
	if m.Cartridge.Host() != config.DefaultHost {
		t.Errorf("host = %q, want %q", m.Cartridge.Host(), config.DefaultHost)
	}
}

// TestBuild_AttachBlock verifies that an explicit block is carried,
// including block 0.
func TestBuild_AttachBlock(t *testing.T) {
	cfg := config.New()
	cfg.BlockSpec = "0"
	cfg.Block = 0
	cfg.Pages = []int{0, 1}

	mode, err := Build(cfg, util.NewLogger(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	m := mode.(*AttachMode)
	if m.Block == nil || *m.Block != 0 {
		t.Fatalf("Block = %v, want 0", m.Block)
	}
	if !strings.Contains(m.String(), "select block $00") {
		t.Errorf("String() = %q", m.String())
	}
}

// TestBuild_Terminal verifies Build produces a TerminalMode.
func TestBuild_Terminal(t *testing.T) {
	cfg := config.New()
	cfg.Terminal = true

	mode, err := Build(cfg, util.NewLogger(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mode.(*TerminalMode); !ok {
		t.Errorf("expected *TerminalMode, got %T", mode)
	}
}

// TestBuild_Serve verifies Build produces a ServeMode with the right
// handler.
func TestBuild_Serve(t *testing.T) {
	tests := []struct {
		name    string
		execute string
		command string
		echo    bool
	}{
		{"echo", "", "", true},
		{"program", "/bin/cat", "", false},
		{"shell", "", "cat", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New()
			cfg.Serve = true
			cfg.Execute = tt.execute
			cfg.Command = tt.command

			mode, err := Build(cfg, util.NewLogger(0), nil)
			if err != nil {
				t.Fatal(err)
			}
			m, ok := mode.(*ServeMode)
			if !ok {
				t.Fatalf("expected *ServeMode, got %T", mode)
			}
			if m.Address != config.DefaultListen {
				t.Errorf("Address = %q", m.Address)
			}
			_, isEcho := m.Server.Handler.(peer.Echo)
			if isEcho != tt.echo {
				t.Errorf("handler = %T", m.Server.Handler)
			}
		})
	}
}

// TestBuildDialer verifies the transport selection.
func TestBuildDialer(t *testing.T) {
	cfg := config.New()
	if _, ok := buildDialer(cfg, util.NewLogger(0)).(*transport.TCPDialer); !ok {
		t.Error("expected *TCPDialer without a tunnel")
	}

	cfg.TunnelEnabled = true
	cfg.TunnelUser, cfg.TunnelHost, cfg.TunnelPort = "pi", "idun", 22
	if _, ok := buildDialer(cfg, util.NewLogger(0)).(*transport.SSHDialer); !ok {
		t.Error("expected *SSHDialer with a tunnel")
	}
}
