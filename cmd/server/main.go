package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackmichael/bsky-autoposter/internal/app"
	"github.com/blackmichael/bsky-autoposter/internal/config"
	"github.com/blackmichael/bsky-autoposter/internal/events"
	"github.com/blackmichael/bsky-autoposter/internal/httpserver"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the config file (default: autoposter.yaml in . or /etc/bsky-autoposter)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	wire, err := app.NewWire(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer wire.Close()
	logger := wire.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Events.URL != "" {
		subscriber := events.NewSubscriber(cfg.Events.URL, wire.Publisher, wire.Repository, logger)
		go func() {
			if err := subscriber.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("event subscriber stopped", "error", err)
			}
		}()
	}

	server := httpserver.NewServer(cfg, wire.Publisher, wire.ActivityLog, wire.Registry, logger)
	serveErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	logger.Info("autoposter running",
		"port", cfg.Server.Port,
		"handle", cfg.Bluesky.Handle,
		"events", cfg.Events.URL != "",
		"webhook_token", cfg.Server.WebhookToken != "",
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
	return nil
}
