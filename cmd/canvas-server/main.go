// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

// canvas-server runs the CollabCanvas collaboration server: the REST
// object API, the websocket change feed, and the presence/cursor
// channel, backed by SQLite (or memory with --in-memory).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/kennyu/gauntlet-collabcanvas/lib/config"
	"github.com/kennyu/gauntlet-collabcanvas/lib/version"
	"github.com/kennyu/gauntlet-collabcanvas/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		listenAddr  string
		dbPath      string
		inMemory    bool
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("canvas-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to canvas.yaml (default: $CANVAS_CONFIG)")
	flagSet.StringVar(&listenAddr, "listen", "", "listen address (overrides config)")
	flagSet.StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	flagSet.BoolVar(&inMemory, "in-memory", false, "keep objects in memory only")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if showVersion {
		fmt.Println("canvas-server", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.ListenAddress = listenAddr
	}
	if dbPath != "" {
		cfg.Server.DatabasePath = dbPath
	}
	if inMemory {
		cfg.Server.DatabasePath = ""
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var store server.ObjectStore
	if cfg.Server.DatabasePath == "" {
		logger.Info("using in-memory object store")
		store = server.NewMemoryStore()
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.Server.DatabasePath), 0o700); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
		store, err = server.OpenSQLiteStore(cfg.Server.DatabasePath, logger)
		if err != nil {
			return err
		}
	}
	defer store.Close()

	srv, err := server.New(server.Config{Store: store, Logger: logger})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddress,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveDone := make(chan error, 1)
	go func() {
		logger.Info("canvas server listening", "address", cfg.Server.ListenAddress)
		serveDone <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveDone:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-serveDone; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// loadConfig resolves the configuration source: explicit flag, then
// the CANVAS_CONFIG environment variable, then built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("CANVAS_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}
