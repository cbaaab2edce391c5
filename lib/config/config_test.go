// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "canvas.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
workspace: team-sprint
server:
  listen_address: "0.0.0.0:9000"
client:
  user_id: alice
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Workspace != "team-sprint" {
		t.Errorf("Workspace = %q", cfg.Workspace)
	}
	if cfg.Server.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("ListenAddress = %q", cfg.Server.ListenAddress)
	}
	// Untouched fields keep their defaults.
	if cfg.Client.ServerURL != "http://localhost:8420" {
		t.Errorf("ServerURL = %q, want default", cfg.Client.ServerURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFileExpandsHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	path := writeConfig(t, `
client:
  snapshot_dir: "${HOME}/canvas-cache"
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Client.SnapshotDir != "/home/tester/canvas-cache" {
		t.Errorf("SnapshotDir = %q", cfg.Client.SnapshotDir)
	}
}

func TestLoadRequiresEnvVar(t *testing.T) {
	t.Setenv("CANVAS_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load with unset CANVAS_CONFIG succeeded")
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate of empty config succeeded")
	}
	message := err.Error()
	for _, want := range []string{"workspace", "listen_address", "server_url"} {
		if !strings.Contains(message, want) {
			t.Errorf("error %q missing %q", message, want)
		}
	}
}

func TestValidateRejectsBadScheme(t *testing.T) {
	cfg := Default()
	cfg.Client.ServerURL = "ftp://example.com"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate accepted ftp scheme")
	}
}

func TestSnapshotPath(t *testing.T) {
	cfg := Default()
	cfg.Client.SnapshotDir = "/tmp/cache"
	if got, want := cfg.SnapshotPath("main"), filepath.Join("/tmp/cache", "main.snapshot"); got != want {
		t.Errorf("SnapshotPath = %q, want %q", got, want)
	}
	cfg.Client.SnapshotDir = ""
	if got := cfg.SnapshotPath("main"); got != "" {
		t.Errorf("SnapshotPath with disabled cache = %q", got)
	}
}
