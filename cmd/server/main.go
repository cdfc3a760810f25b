package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"bombfield/server/internal/app"
	"bombfield/server/internal/telemetry"
)

func main() {
	addr := flag.String("addr", "", "listen address, overrides LISTEN_ADDR")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	logger := telemetry.WrapLogger(log.Default())
	cfg, err := app.LoadConfig(*envFile, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
