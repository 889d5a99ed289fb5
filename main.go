package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/odvcencio/visualdocs-collab/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "vdcollab: %v\n", err)
		stop()
		os.Exit(1)
	}
}
