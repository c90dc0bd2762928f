package core

import (
	"context"
	"fmt"

	"iduncart/internal/peer"
)

// ServeMode runs the simulated coprocessor on Address until ctx ends
// (or after one cartridge session without KeepOpen).
type ServeMode struct {
	Server   *peer.Server
	Address  string
	BlockDir string // for String only
}

func (m *ServeMode) String() string {
	h := "echo"
	if e, ok := m.Server.Handler.(*peer.Exec); ok {
		h = "exec " + e.Program
		if e.Command != "" {
			h = "sh -c " + e.Command
		}
	}
	return fmt.Sprintf("serve blocks from %s on %s, data channel: %s", m.BlockDir, m.Address, h)
}

func (m *ServeMode) Run(ctx context.Context) error {
	return m.Server.ListenAndServe(ctx, m.Address)
}
