// Package errors provides domain-specific error types for iduncart.
//
// The cartridge separates three failure classes: transport errors
// (recoverable, the session degrades to disconnected), protocol
// violations (fatal, the peer is out of step with us) and precondition
// violations (fatal, a caller handed us an address outside a device's
// range).  The types below carry enough context to tell them apart.
package errors

import (
	"errors"
	"fmt"
	"net"

	pkgerrors "github.com/pkg/errors"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrNotConnected = errors.New("not connected")
	ErrTimeout      = errors.New("operation timed out")
	ErrTunnelClosed = errors.New("tunnel is closed")
	ErrBadHost      = errors.New("bad host address")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "dial", "send", "receive", "close"
	Addr      string // peer address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey", "dial"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ProtocolError reports a length mismatch in the block transfer
// handshake: the peer sent fewer bytes than a frame requires, or a
// page count the cache cannot hold.
type ProtocolError struct {
	Op   string // "page-count", "page"
	Want int    // bytes (or pages) expected
	Got  int    // bytes (or pages) seen
	Err  error  // underlying receive error, if any
}

func (e *ProtocolError) Error() string {
	s := fmt.Sprintf("protocol violation in %s: want %d, got %d", e.Op, e.Want, e.Got)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// PreconditionError reports an address handed to a device entry point
// that lies outside the device's declared range.
type PreconditionError struct {
	Device string
	Addr   uint16
	Lo, Hi uint16
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: address $%04X outside $%04X-$%04X", e.Device, e.Addr, e.Lo, e.Hi)
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// Protocol creates a ProtocolError with the caller's stack attached.
// Format the result with %+v to print the stack.
func Protocol(op string, want, got int, err error) error {
	return pkgerrors.WithStack(&ProtocolError{Op: op, Want: want, Got: got, Err: err})
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// IsProtocol reports whether err is (or wraps) a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }
