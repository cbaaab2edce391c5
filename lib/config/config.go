// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration shared by the server and client
// binaries. Each binary reads only its own section plus Workspace.
type Config struct {
	// Workspace is the default workspace both binaries operate on.
	Workspace string `yaml:"workspace"`

	// Server configures canvas-server.
	Server ServerConfig `yaml:"server"`

	// Client configures canvas-client.
	Client ClientConfig `yaml:"client"`
}

// ServerConfig configures the collaboration server.
type ServerConfig struct {
	// ListenAddress is the host:port the HTTP listener binds.
	ListenAddress string `yaml:"listen_address"`

	// DatabasePath is the SQLite file holding the durable object
	// store. Empty selects an in-memory store (nothing survives a
	// restart) — useful for demos and tests.
	DatabasePath string `yaml:"database_path"`
}

// ClientConfig configures the terminal client.
type ClientConfig struct {
	// ServerURL is the base URL of the collaboration server.
	ServerURL string `yaml:"server_url"`

	// UserID identifies the local user. Required to edit; an empty
	// value runs the client read-only.
	UserID string `yaml:"user_id"`

	// DisplayName is shown to peers. Falls back to UserID.
	DisplayName string `yaml:"display_name"`

	// SnapshotDir is where per-workspace snapshot cache files live.
	// Empty disables the cache.
	SnapshotDir string `yaml:"snapshot_dir"`
}

// Default returns the base configuration that a loaded file merges
// into. The defaults make a single-machine demo work with an empty
// file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	cacheDir := filepath.Join(homeDir, ".cache", "collabcanvas")

	return &Config{
		Workspace: "main",
		Server: ServerConfig{
			ListenAddress: "localhost:8420",
			DatabasePath:  filepath.Join(cacheDir, "canvas.db"),
		},
		Client: ClientConfig{
			ServerURL:   "http://localhost:8420",
			SnapshotDir: filepath.Join(cacheDir, "snapshots"),
		},
	}
}

// Load loads configuration from the CANVAS_CONFIG environment
// variable. Fails when it is unset: there is no config discovery.
func Load() (*Config, error) {
	configPath := os.Getenv("CANVAS_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CANVAS_CONFIG environment variable not set; " +
			"set it to the path of your canvas.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merged over
// Default.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Server.DatabasePath = expandVars(c.Server.DatabasePath, vars)
	c.Client.SnapshotDir = expandVars(c.Client.SnapshotDir, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration, joining all problems into one
// error so a broken file reports everything at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Workspace == "" {
		errs = append(errs, fmt.Errorf("workspace is required"))
	}
	if c.Server.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("server.listen_address is required"))
	}
	if c.Client.ServerURL == "" {
		errs = append(errs, fmt.Errorf("client.server_url is required"))
	} else if parsed, err := url.Parse(c.Client.ServerURL); err != nil {
		errs = append(errs, fmt.Errorf("client.server_url: %w", err))
	} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
		errs = append(errs, fmt.Errorf("client.server_url must be http or https, got %q", parsed.Scheme))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SnapshotPath returns the snapshot cache file for a workspace, or ""
// when the cache is disabled.
func (c *Config) SnapshotPath(workspace string) string {
	if c.Client.SnapshotDir == "" {
		return ""
	}
	return filepath.Join(c.Client.SnapshotDir, workspace+".snapshot")
}
