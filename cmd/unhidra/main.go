package main

import (
	"context"
	"os"
	"os/signal"

	"unhidra/cmd/unhidra/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := commands.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
