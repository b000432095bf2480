// Command pavlokctl logs in to the Pavlok API and sends stimuli from the shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/florianilch/pavlok/cmd/pavlokctl/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "pavlokctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}
