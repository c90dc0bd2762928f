package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultHost is where the coprocessor's cartridge service
	// listens.
	DefaultHost = "localhost:25232"

	// DefaultListen is the bind address of the simulated peer.
	DefaultListen = ":25232"

	// DefaultBlockDir holds the simulated peer's block images.
	DefaultBlockDir = "eram"

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout bounds each TCP/SSH dial.
	DefaultConnTimeout = 5 * time.Second

	// DefaultConnectAttempts is how many times a session dials before
	// it settles for disconnected.
	DefaultConnectAttempts = 1

	// DefaultWait is how long attach mode collects data channel
	// replies after sending.
	DefaultWait = 500 * time.Millisecond
)
