package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"time"
)

// Handler decides what the coprocessor does with the data channel.
type Handler interface {
	// Handle blocks until the channel's input ends or ctx is
	// cancelled.
	Handle(ctx context.Context, ch *Channel) error
}

// Echo sends every data byte straight back, which is what the
// coprocessor's loopback test app does.
type Echo struct{}

func (Echo) Handle(ctx context.Context, ch *Channel) error {
	_, err := io.Copy(ch.Out, ch.In)
	return err
}

// Exec runs a program with its stdio bound to the data channel, the
// way the coprocessor launches an app for the cartridge.  Either
// Program or Command must be set.
type Exec struct {
	Program string // run directly
	Command string // run through the system shell
}

func (e *Exec) Handle(ctx context.Context, ch *Channel) error {
	var cmd *exec.Cmd

	switch {
	case e.Command != "":
		if runtime.GOOS == "windows" {
			cmd = exec.CommandContext(ctx, "cmd.exe", "/C", e.Command)
		} else {
			cmd = exec.CommandContext(ctx, "/bin/sh", "-c", e.Command)
		}
	case e.Program != "":
		cmd = exec.CommandContext(ctx, e.Program)
	default:
		return fmt.Errorf("no command specified for exec handler")
	}

	cmd.Stdin = ch.In
	cmd.Stdout = ch.Out
	cmd.Stderr = ch.Out
	// In only ends with the connection; don't let it hold up Wait.
	cmd.WaitDelay = time.Second

	ch.Logger.Debug("exec: %s", cmd.String())

	if err := cmd.Run(); err != nil && !errors.Is(err, exec.ErrWaitDelay) {
		return fmt.Errorf("exec %q: %w", cmd.Path, err)
	}
	return nil
}
