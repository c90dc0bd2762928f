// Package core is the orchestration layer.  It composes the cartridge,
// its transport and the simulated peer into complete operational modes
// and provides a builder that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  cartridge / peer  →  core  →  cmd (CLI)
package core

import (
	"context"
	"io"
	"os"
)

// Mode represents a complete operational mode of iduncart (attach,
// terminal or serve).  Each mode owns its full lifecycle from
// connection establishment to teardown.
type Mode interface {
	Run(ctx context.Context) error
	// String describes what Run would do, for --dry-run.
	String() string
}

// stdio carries the local I/O endpoints of a mode.  Stdin/Stdout
// default to os.Stdin/os.Stdout when nil; override in tests for
// deterministic I/O.
type stdio struct {
	Stdin  io.Reader
	Stdout io.Writer
}

func (s stdio) stdin() io.Reader {
	if s.Stdin != nil {
		return s.Stdin
	}
	return os.Stdin
}

func (s stdio) stdout() io.Writer {
	if s.Stdout != nil {
		return s.Stdout
	}
	return os.Stdout
}
