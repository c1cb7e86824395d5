package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chat-mesh/internal"
	"chat-mesh/relay"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	_ = godotenv.Load()
	var config internal.RelayConfig
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var fanout relay.Fanout
	if config.RedisAddr != "" {
		redisFanout, err := relay.NewRedisFanout(ctx, logger, config.RedisAddr)
		if err != nil {
			return exitRuntime, fmt.Errorf("redis fanout init failed: %w", err)
		}
		defer func() { _ = redisFanout.Close() }()
		fanout = redisFanout
		logger.Info("Cross-instance fanout enabled", "redis", config.RedisAddr)
	}

	hub := relay.NewHub(logger, fanout)
	go hub.Run()

	server := relay.NewServer(logger, hub, []byte(config.JWTSecret))
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:    address,
		Handler: server.Router(),
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting relay", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("relay server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return exitRuntime, fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("Relay stopped cleanly")

	return exitOK, nil
}
