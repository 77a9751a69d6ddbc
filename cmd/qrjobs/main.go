package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jdziat/simple-qr-jobs/cmd/qrjobs/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Root().Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
