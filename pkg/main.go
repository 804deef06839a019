package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/config"
)

func main() {
	config.Load()

	server, cleanup, err := Setup()
	if err != nil {
		log.Fatalf("main start failed %v", err)
		return
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server.Run(ctx)
}
