package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the IDUN_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// syntax ("750ms", "2s") or a bare number of seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("IDUN_HOST"); v != "" {
		cfg.Host = v
	}
	if v, ok := envDuration("IDUN_CONNECT_TIMEOUT"); ok {
		cfg.ConnectTimeout = v
	}
	if v := envInt("IDUN_CONNECT_ATTEMPTS"); v > 0 {
		cfg.ConnectAttempts = v
	}
	if v, ok := envDuration("IDUN_TRANSFER_TIMEOUT"); ok {
		cfg.TransferTimeout = v
	}

	// Simulated peer
	if v := os.Getenv("IDUN_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("IDUN_BLOCK_DIR"); v != "" {
		cfg.BlockDir = v
	}
	if envBool("IDUN_KEEP_OPEN") {
		cfg.KeepOpen = true
	}

	// SSH tunnel
	if v := os.Getenv("IDUN_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("IDUN_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("IDUN_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("IDUN_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("IDUN_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("IDUN_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if v := envInt("IDUN_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
	if v := os.Getenv("IDUN_STATSVIEW"); v != "" {
		cfg.StatsView = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

// envDuration reads a duration; ok is false when the variable is unset
// or does not parse.
func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	if n, err := strconv.Atoi(v); err == nil {
		return secondsDuration(n), true
	}
	return 0, false
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
