// Package main provides the epctl CLI entry point.
// epctl is the command-line interface for EmailPilot comprehensive queries.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/emailpilot/epctl/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
