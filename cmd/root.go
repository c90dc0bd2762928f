// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"iduncart/config"
	"iduncart/internal/core"
	"iduncart/internal/metrics"
	"iduncart/internal/statsview"
	"iduncart/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X iduncart/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stdout receives --dry-run, --version and --metrics output.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// Execute parses args and runs the appropriate iduncart mode.
func Execute(ctx context.Context, args []string) error {
	cfg := config.New()
	config.LoadFromEnv(cfg)
	fs := flag.NewFlagSet("iduncart", flag.ContinueOnError)

	// ── cartridge ────────────────────────────────────────────────
	fs.StringVarP(&cfg.Host, "host", "H", cfg.Host, "Coprocessor service host:port")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "Timeout for each connect attempt")
	fs.IntVar(&cfg.ConnectAttempts, "connect-attempts", cfg.ConnectAttempts, "Connect attempts before giving up")
	fs.DurationVar(&cfg.TransferTimeout, "transfer-timeout", cfg.TransferTimeout, "Give up on a stalled block transfer (0 = wait)")

	// ── attach actions ───────────────────────────────────────────
	fs.StringVarP(&cfg.BlockSpec, "block", "b", "", "Select block (0-255, $hex or 0xhex)")
	fs.StringVarP(&cfg.PageSpec, "pages", "P", "", "Hexdump pages through the window, e.g. 0,2-3")
	fs.StringVarP(&cfg.Send, "send", "s", "", "Write bytes to the data register")
	fs.DurationVar(&cfg.Wait, "wait", cfg.Wait, "Collect data channel replies until idle this long")
	fs.BoolVarP(&cfg.Dump, "dump", "d", false, "Print the cartridge device dumps")
	fs.BoolVarP(&cfg.Terminal, "terminal", "t", false, "Bridge the terminal to the data channel")

	// ── simulated peer ───────────────────────────────────────────
	fs.BoolVarP(&cfg.Serve, "serve", "l", false, "Run the simulated coprocessor")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "Address the simulated coprocessor binds")
	fs.StringVar(&cfg.BlockDir, "blocks", cfg.BlockDir, "Directory of NN.blk block images")
	fs.BoolVarP(&cfg.KeepOpen, "keep-open", "k", cfg.KeepOpen, "Serve multiple cartridge sessions")
	fs.StringVarP(&cfg.Execute, "exec", "e", "", "Run program as the data channel app (with --serve)")
	fs.StringVarP(&cfg.Command, "command", "c", "", "Run shell command as the data channel app (with --serve)")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Reach the coprocessor via SSH [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	verbose := cfg.Verbose
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate and describe the run, then exit")
	fs.BoolVar(&cfg.Metrics, "metrics", false, "Print transfer metrics as JSON on exit")
	fs.StringVar(&cfg.StatsView, "statsview", cfg.StatsView, "Serve runtime stats on this address")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "iduncart %s\n", version)
		return nil
	}
	// CountVar starts from zero; keep IDUN_VERBOSE unless -v was given.
	if !fs.Changed("verbose") {
		cfg.Verbose = verbose
	}

	// ── positional host ──────────────────────────────────────────
	switch rest := fs.Args(); len(rest) {
	case 0:
	case 1:
		cfg.Host = rest[0]
	default:
		return fmt.Errorf("too many arguments (use --help for usage)")
	}

	// ── block and pages ──────────────────────────────────────────
	if cfg.BlockSpec != "" {
		b, err := config.ParseBlock(cfg.BlockSpec)
		if err != nil {
			return fmt.Errorf("block: %w", err)
		}
		cfg.Block = b
	}
	if cfg.PageSpec != "" {
		pages, err := config.ParsePageSpec(cfg.PageSpec)
		if err != nil {
			return fmt.Errorf("pages: %w", err)
		}
		cfg.Pages = pages
	}

	// ── tunnel spec ──────────────────────────────────────────────
	if cfg.TunnelSpec != "" {
		user, host, port, err := config.ParseTunnelSpec(cfg.TunnelSpec)
		if err != nil {
			return fmt.Errorf("tunnel: %w", err)
		}
		cfg.TunnelEnabled = true
		cfg.TunnelUser = user
		cfg.TunnelHost = host
		cfg.TunnelPort = port
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)

	var m *metrics.Collector
	if cfg.Metrics {
		m = metrics.New()
	}

	mode, err := core.Build(cfg, logger, m)
	if err != nil {
		return err
	}

	if cfg.DryRun {
		fmt.Fprintln(stdout, mode.String())
		return nil
	}

	if cfg.StatsView != "" {
		stop := statsview.Launch(cfg.StatsView, logger)
		defer stop()
	}

	logger.Verbose("%s", mode)
	err = mode.Run(ctx)
	if m != nil {
		fmt.Fprintln(stdout, m.JSON())
	}
	return err
}

// ── helpers ──────────────────────────────────────────────────────────

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `iduncart – Idun network cartridge v%s

Attaches an emulated Idun cartridge to its coprocessor service, or
runs a simulated coprocessor for it to attach to.

Usage:
  iduncart [options] [host:port]              Attach and drive the registers
  iduncart -t [options] [host:port]           Terminal on the data channel
  iduncart -l [options]                       Simulated coprocessor

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Environment:
  IDUN_HOST, IDUN_CONNECT_TIMEOUT, IDUN_CONNECT_ATTEMPTS,
  IDUN_TRANSFER_TIMEOUT, IDUN_LISTEN, IDUN_BLOCK_DIR, IDUN_KEEP_OPEN,
  IDUN_TUNNEL, IDUN_SSH_KEY, IDUN_SSH_PASSWORD, IDUN_SSH_AGENT,
  IDUN_STRICT_HOSTKEY, IDUN_KNOWN_HOSTS, IDUN_VERBOSE, IDUN_STATSVIEW

Examples:
  iduncart -b 7 -P 0-1 idun.local:25232       Dump two pages of block 7
  iduncart -s 'hello' --wait 1s               Talk to the data channel
  iduncart -t -T pi@idun.local                Terminal through SSH
  iduncart -l -k --blocks ./eram -c bc        Peer running bc
`)
}
