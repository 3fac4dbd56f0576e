package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainsmoker-project/chainsmoker/cmd"
)

// Set via -ldflags "-X main.Version=... -X main.BuildTime=...".
var Version = "dev"
var BuildTime = ""

func main() {
	cmd.SetVersion(Version, BuildTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First signal requests a graceful stop through the context; a second
	// signal aborts immediately for commands stuck draining (serve, watch).
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		cancel()
		<-sigChan
		fmt.Fprintln(os.Stderr, "forced shutdown")
		os.Exit(1)
	}()

	if err := cmd.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
