package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lei/runwatch/pkg/gateway"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	// Load .env file (ignore error if file doesn't exist - env vars might be set externally)
	_ = godotenv.Load()

	// A config file takes precedence over plain environment variables
	var (
		gw  *gateway.Gateway
		err error
	)
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		gw, err = gateway.NewFromFile(path, nil)
	} else {
		gw, err = gateway.NewFromEnv()
	}
	if err != nil {
		return err
	}
	defer gw.Close()

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start the gateway (blocks until shutdown)
	return gw.Start(ctx)
}
