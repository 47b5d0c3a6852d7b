// Command server runs the utility rates service with the production
// profile: access logging off, Server header suppressed, WORKERS honored
// from the environment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/gridwise/utility-rates/internal/app/runtime"
	"github.com/gridwise/utility-rates/internal/config"
)

func main() {
	_ = godotenv.Load()

	if os.Getenv("LOG_LEVEL") == "" {
		os.Setenv("LOG_LEVEL", "info")
	}

	cfg, err := config.Production()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}
