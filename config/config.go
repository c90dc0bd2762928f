// Package config defines the runtime configuration for iduncart and
// provides helpers for parsing tunnel, block and page arguments.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ncerr "iduncart/internal/errors"
	"iduncart/util"
)

// Config holds every tuneable for a single iduncart run.
type Config struct {
	// ── Cartridge ────────────────────────────────────────────────────
	Host            string // peer host:port (the IDUNHOST resource)
	ConnectTimeout  time.Duration
	ConnectAttempts int
	TransferTimeout time.Duration // 0 → block protocol waits forever

	// ── Attach actions ───────────────────────────────────────────────
	BlockSpec string        // raw -b value, "" keeps the system block
	Block     uint8         // parsed BlockSpec
	PageSpec  string        // raw -P value
	Pages     []int         // parsed PageSpec
	Send      string        // bytes to write to the data register
	Wait      time.Duration // how long to collect data channel replies
	Dump      bool          // print the device dumps
	Terminal  bool          // interactive data channel

	// ── Peer ─────────────────────────────────────────────────────────
	Serve    bool
	Listen   string // address the simulated peer binds
	BlockDir string
	KeepOpen bool
	Execute  string // -e: program path
	Command  string // -c: shell command

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string // raw user@host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string

	// ── Output ───────────────────────────────────────────────────────
	Verbose   int
	DryRun    bool
	Metrics   bool
	StatsView string // address of the runtime stats viewer, "" = off
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Host:            DefaultHost,
		ConnectTimeout:  DefaultConnTimeout,
		ConnectAttempts: DefaultConnectAttempts,
		Wait:            DefaultWait,
		Listen:          DefaultListen,
		BlockDir:        DefaultBlockDir,
	}
}

// ── Block and page helpers ───────────────────────────────────────────

// ParseBlock accepts a block id as decimal ("7"), or hex with a "$" or
// "0x" prefix ("$FF", "0x0a").
func ParseBlock(spec string) (uint8, error) {
	s := strings.TrimSpace(spec)
	base := 10
	switch {
	case strings.HasPrefix(s, "$"):
		s, base = s[1:], 16
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		s, base = s[2:], 16
	}
	n, err := strconv.ParseUint(s, base, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid block %q (0-255, $00-$FF)", spec)
	}
	return uint8(n), nil
}

// ParsePageSpec accepts a comma-separated list of pages and ranges,
// e.g. "0", "0-3" or "0,2,8-9".  Pages are 0-63; duplicates are kept
// in the order given.
func ParsePageSpec(spec string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty page in %q", spec)
		}
		lo, hi := part, part
		if i := strings.Index(part, "-"); i >= 0 {
			lo, hi = part[:i], part[i+1:]
		}
		start, err := parsePage(lo)
		if err != nil {
			return nil, err
		}
		end, err := parsePage(hi)
		if err != nil {
			return nil, err
		}
		if start > end {
			return nil, fmt.Errorf("invalid page range %d-%d", start, end)
		}
		for p := start; p <= end; p++ {
			out = append(out, p)
		}
	}
	return out, nil
}

func parsePage(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid page %q", s)
	}
	if n < 0 || n > 63 {
		return 0, fmt.Errorf("page %d out of range 0-63", n)
	}
	return n, nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "pi@idun.local:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Serve {
		if _, _, err := util.SplitHostPort(c.listenAddr()); err != nil {
			return &ncerr.ConfigError{
				Field:   "listen",
				Value:   c.Listen,
				Message: err.Error(),
				Hint:    "use [host]:port, e.g. :25232",
			}
		}
		if c.Terminal {
			return &ncerr.ConfigError{
				Field:   "terminal",
				Message: "serve and terminal modes are mutually exclusive",
			}
		}
		if c.TunnelEnabled {
			return &ncerr.ConfigError{
				Field:   "tunnel",
				Message: "the simulated peer cannot listen through an SSH tunnel",
				Hint:    "run --serve on the coprocessor and -T from the emulator side",
			}
		}
	} else if _, _, err := util.SplitHostPort(c.Host); err != nil {
		return &ncerr.ConfigError{
			Field:   "host",
			Value:   c.Host,
			Message: err.Error(),
			Hint:    "the cartridge service address is host:port, default " + DefaultHost,
		}
	}

	if c.Execute != "" && c.Command != "" {
		return fmt.Errorf("-e and -c are mutually exclusive")
	}
	if (c.Execute != "" || c.Command != "") && !c.Serve {
		return &ncerr.ConfigError{
			Field:   "exec",
			Message: "-e/-c run an app on the simulated peer",
			Hint:    "add --serve",
		}
	}

	if c.ConnectAttempts < 1 {
		return &ncerr.ConfigError{
			Field:   "connect-attempts",
			Value:   c.ConnectAttempts,
			Message: "must be at least 1",
		}
	}
	if c.TransferTimeout < 0 {
		return &ncerr.ConfigError{
			Field:   "transfer-timeout",
			Value:   c.TransferTimeout,
			Message: "must not be negative",
			Hint:    "0 waits for the peer indefinitely",
		}
	}

	if c.TunnelEnabled && c.TunnelHost == "" {
		return fmt.Errorf("tunnel host is required")
	}

	return nil
}

// listenAddr returns Listen with an empty host allowed (":25232").
func (c *Config) listenAddr() string {
	if strings.HasPrefix(c.Listen, ":") {
		return "0.0.0.0" + c.Listen
	}
	return c.Listen
}
