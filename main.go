// iduncart - the Idun network cartridge core with a simulated coprocessor.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"iduncart/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "iduncart: %v\n", err)
		os.Exit(1)
	}
}
