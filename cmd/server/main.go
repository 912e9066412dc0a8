package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"AccountDesk/internal/config"
	"AccountDesk/internal/editor"
	l "AccountDesk/internal/logger"
	"AccountDesk/internal/server"
	"AccountDesk/internal/store"
	"AccountDesk/internal/store/memory"
	"AccountDesk/internal/store/postgres"
)

func main() {
	cfg := config.Default()
	cfg.Register(flag.CommandLine, os.Getenv)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Invalid configuration:", err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	level, _ := l.ParseLevel(cfg.LogLevel)
	serverLogger := l.New("server", cfg.LogDir, level)
	l.New("editor", cfg.LogDir, level)
	l.New("store", cfg.LogDir, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	registry := editor.NewRegistry(
		editor.NewUpdater(s, cfg.LockTimeout),
		editor.NewReader(s),
		cfg.IdleTimeout,
	)
	go registry.Run(ctx, cfg.ReapInterval)

	serverLogger.Info("Starting AccountDesk server (driver=%s, lock timeout=%s)", cfg.Driver, cfg.LockTimeout)
	err = server.New(registry).ListenAndServe(ctx, cfg.Addr, cfg.ShutdownGrace)
	serverLogger.Info("Shutting down AccountDesk server")
	return err
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.Driver == config.DriverMemory {
		e := memory.New()
		if cfg.Seed {
			e.Seed()
		}
		return e, nil
	}

	pg, err := postgres.Open(ctx, postgres.Options{
		DSN:          cfg.DSN,
		Table:        cfg.Table,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}
	return pg, nil
}
