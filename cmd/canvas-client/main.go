// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

// canvas-client is a terminal viewer for a shared workspace. It renders
// the workspace's rectangles and the cursors of connected peers,
// supports creating and dragging objects, and keeps editing while the
// server is unreachable, reconciling when the connection returns.
//
// Keys: arrows move the pointer, n creates a rectangle at the pointer,
// tab cycles the selection, h/j/k/l drags the selected rectangle, enter
// commits the drag, q quits.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/kennyu/gauntlet-collabcanvas/backend"
	"github.com/kennyu/gauntlet-collabcanvas/canvas"
	"github.com/kennyu/gauntlet-collabcanvas/engine"
	"github.com/kennyu/gauntlet-collabcanvas/identity"
	"github.com/kennyu/gauntlet-collabcanvas/lib/config"
	"github.com/kennyu/gauntlet-collabcanvas/lib/version"
	"github.com/kennyu/gauntlet-collabcanvas/presence"
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
		serverURL   string
		workspace   string
		userID      string
		displayName string
		logPath     string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("canvas-client", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to canvas.yaml (default: $CANVAS_CONFIG)")
	flagSet.StringVar(&serverURL, "server", "", "collaboration server URL (overrides config)")
	flagSet.StringVar(&workspace, "workspace", "", "workspace to join (overrides config)")
	flagSet.StringVar(&userID, "user", "", "user id (overrides config; empty joins read-only)")
	flagSet.StringVar(&displayName, "name", "", "display name shown to peers")
	flagSet.StringVar(&logPath, "log-file", "", "write logs to this file (default: discard)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if showVersion {
		fmt.Println("canvas-client", version.Info())
		return nil
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("canvas-client requires a terminal")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if serverURL != "" {
		cfg.Client.ServerURL = serverURL
	}
	if workspace != "" {
		cfg.Workspace = workspace
	}
	if userID != "" {
		cfg.Client.UserID = userID
	}
	if displayName != "" {
		cfg.Client.DisplayName = displayName
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// The alternate screen owns stdout, so logs go to a file or nowhere.
	logWriter := io.Writer(io.Discard)
	if logPath != "" {
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer file.Close()
		logWriter = file
	}
	logger := slog.New(slog.NewTextHandler(logWriter, nil))

	client, err := backend.NewClient(backend.ClientConfig{
		ServerURL: cfg.Client.ServerURL,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	var id identity.Identity
	if cfg.Client.UserID != "" {
		id = identity.New(canvas.UserID(cfg.Client.UserID), cfg.Client.DisplayName)
	}

	eng, err := engine.New(engine.Config{
		Workspace:    canvas.WorkspaceID(cfg.Workspace),
		Identity:     id,
		Backend:      client,
		Logger:       logger,
		SnapshotPath: cfg.SnapshotPath(cfg.Workspace),
	})
	if err != nil {
		return err
	}
	if err := eng.Start(); err != nil {
		return err
	}
	defer eng.Close()

	program := tea.NewProgram(newModel(eng), tea.WithAltScreen())

	// Engine listeners fire on the engine's loop goroutine; Send is the
	// thread-safe way into the bubbletea loop.
	cancels := []func(){
		eng.SubscribeObjects(func(objects []canvas.Object) { program.Send(objectsMsg(objects)) }),
		eng.SubscribeCursors(func(cursors []presence.Cursor) { program.Send(cursorsMsg(cursors)) }),
		eng.SubscribeRoster(func(roster []presence.RosterEntry) { program.Send(rosterMsg(roster)) }),
		eng.SubscribeStatus(func(status engine.Status) { program.Send(statusMsg(status)) }),
	}
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	_, err = program.Run()
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("CANVAS_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}
