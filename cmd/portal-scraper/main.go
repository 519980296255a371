package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/dealer-portal-scraper/cmd/portal-scraper/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(commands.ExecuteContext(ctx))
}
