// campuschat is an interactive terminal client for the private messaging core.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/fx"

	"github.com/changyunjeff/campus-mp/internal/app"
	"github.com/changyunjeff/campus-mp/internal/config"
	"github.com/changyunjeff/campus-mp/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flagSet := pflag.NewFlagSet("campuschat", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.WebSocketURL, "ws", cfg.WebSocketURL, "relay websocket url")
	flagSet.StringVar(&cfg.BaseURL, "base", cfg.BaseURL, "backend base url for profile lookups")
	flagSet.StringVar(&cfg.Token, "token", cfg.Token, "bearer token")
	flagSet.StringVar(&cfg.Identity, "identity", cfg.Identity, "override the identity read from the token")
	flagSet.StringVar(&cfg.CacheBackend, "cache-backend", cfg.CacheBackend, "sqlite, pebble, postgres or memory")
	flagSet.StringVar(&cfg.CachePath, "cache-path", cfg.CachePath, "cache location, or a DSN for postgres")
	flagSet.StringVar(&cfg.LogLevel, "log-level", "warn", "debug, info, warn or error")
	flagSet.BoolVar(&cfg.Debug, "debug", cfg.Debug, "human-readable logs")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Debug)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	var client *app.Client
	fxApp := fx.New(app.Options(cfg, logger), fx.Populate(&client))
	if err := fxApp.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	runErr := newREPL(client, os.Stdin, os.Stdout).Run(context.Background())

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStop()
	if err := fxApp.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
