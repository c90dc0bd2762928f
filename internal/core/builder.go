package core

import (
	"github.com/spf13/afero"

	"iduncart/config"
	"iduncart/internal/cartridge"
	"iduncart/internal/metrics"
	"iduncart/internal/peer"
	"iduncart/internal/transport"
	"iduncart/tunnel"
	"iduncart/util"
)

// Build constructs the appropriate Mode from the given configuration.
// m may be nil.
func Build(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (Mode, error) {
	switch {
	case cfg.Serve:
		return buildServe(cfg, logger), nil
	case cfg.Terminal:
		return &TerminalMode{
			Cartridge: buildCartridge(cfg, logger, m),
			Logger:    logger,
		}, nil
	default:
		return buildAttach(cfg, logger, m), nil
	}
}

// ── mode builders ────────────────────────────────────────────────────

func buildAttach(cfg *config.Config, logger *util.Logger, m *metrics.Collector) Mode {
	mode := &AttachMode{
		Cartridge: buildCartridge(cfg, logger, m),
		Pages:     cfg.Pages,
		Send:      []byte(cfg.Send),
		Wait:      cfg.Wait,
		Dump:      cfg.Dump,
		Logger:    logger,
	}
	if cfg.BlockSpec != "" {
		b := cfg.Block
		mode.Block = &b
	}
	return mode
}

func buildServe(cfg *config.Config, logger *util.Logger) Mode {
	srv := &peer.Server{
		Store:    peer.NewBlockStore(afero.NewOsFs(), cfg.BlockDir),
		Handler:  buildHandler(cfg),
		KeepOpen: cfg.KeepOpen,
		Logger:   logger,
	}
	return &ServeMode{Server: srv, Address: cfg.Listen, BlockDir: cfg.BlockDir}
}

// ── shared helpers ───────────────────────────────────────────────────

func buildCartridge(cfg *config.Config, logger *util.Logger, m *metrics.Collector) *cartridge.Cartridge {
	return cartridge.New(cfg.Host, cartridge.Options{
		Dialer:          buildDialer(cfg, logger),
		ConnectTimeout:  cfg.ConnectTimeout,
		ConnectAttempts: cfg.ConnectAttempts,
		TransferTimeout: cfg.TransferTimeout,
		Logger:          logger,
		Metrics:         m,
	})
}

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.ConnectTimeout,
		}, logger)
	}

	return &transport.TCPDialer{
		Timeout: cfg.ConnectTimeout,
		NoDelay: true,
	}
}

// buildHandler selects what the simulated peer does with the data
// channel.
func buildHandler(cfg *config.Config) peer.Handler {
	if cfg.Execute != "" || cfg.Command != "" {
		return &peer.Exec{
			Program: cfg.Execute,
			Command: cfg.Command,
		}
	}
	return peer.Echo{}
}
