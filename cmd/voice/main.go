package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	voicecmd "github.com/louisbranch/duetstage/internal/cmd/voice"
)

func main() {
	cfg, err := voicecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[VOICE] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := voicecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
