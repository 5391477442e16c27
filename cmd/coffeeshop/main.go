package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"coffeeshop/internal/config"
	"coffeeshop/internal/infra/db"
	httpinfra "coffeeshop/internal/infra/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("coffeeshop exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	var store *db.Store
	if cfg.DBDriver != config.DriverMemory {
		store, err = db.NewStore(cfg)
		if err != nil {
			return fmt.Errorf("init store: %w", err)
		}
		defer store.Close()
		if store.DB != nil {
			if err := prepareStore(store, cfg.DBReset); err != nil {
				return fmt.Errorf("prepare store: %w", err)
			}
		}
	}

	srv := httpinfra.NewServer(cfg, store, logger)
	defer srv.Close()
	if err := srv.AuthInitErr(); err != nil {
		return fmt.Errorf("init authorization: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("coffeeshop listening", "addr", cfg.HTTPAddr, "db_driver", cfg.DBDriver, "auth_mode", cfg.AuthMode)
		serveErr <- httpServer.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func prepareStore(store *db.Store, reset bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if reset {
		return store.Reset(ctx)
	}
	return store.Migrate(ctx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
