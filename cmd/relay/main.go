// relay is the development counterpart of the messaging client: it speaks the
// envelope protocol on /ws and serves the small REST surface the client uses.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/config"
	"github.com/changyunjeff/campus-mp/internal/httpserver"
	"github.com/changyunjeff/campus-mp/internal/logging"
	"github.com/changyunjeff/campus-mp/internal/security"
	"github.com/changyunjeff/campus-mp/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadRelay()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flagSet := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.Host, "host", cfg.Host, "listen host")
	flagSet.IntVar(&cfg.Port, "port", cfg.Port, "listen port")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flagSet.StringSliceVar(&cfg.SensitiveWords, "sensitive", cfg.SensitiveWords, "words that fail content-checked messages")
	queue := flagSet.Int("offline-queue", 200, "max queued envelopes per offline user")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.TokenTTLMinutes)*time.Minute)
	relay := ws.NewRelay(ws.NewHub(*queue, logger.Named("hub")), ws.NewPolicy(cfg.SensitiveWords), nil, logger.Named("relay"))
	router := httpserver.NewRouter(cfg, relay, tokenSvc, httpserver.NewDirectory(), logger)

	srv := &http.Server{
		Addr:        cfg.HTTPAddr(),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay_listening", zap.String("addr", cfg.HTTPAddr()), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("relay_shutting_down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful_shutdown_failed", zap.Error(err))
	}
	return nil
}
