// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/kennyu/gauntlet-collabcanvas/backend"
	"github.com/kennyu/gauntlet-collabcanvas/canvas"
	"github.com/kennyu/gauntlet-collabcanvas/lib/codec"
)

// magic identifies a snapshot file. Bumping version invalidates all
// existing snapshots, which is always safe: the client just cold
// starts.
const (
	magic   = "CCSNAP"
	version = 1
)

// file is the decompressed snapshot payload.
type file struct {
	Magic     string           `cbor:"magic"`
	Version   int              `cbor:"version"`
	Workspace string           `cbor:"workspace"`
	SavedAt   int64            `cbor:"savedAt"`
	Records   []backend.Record `cbor:"records"`
}

// Save writes the workspace's records to path, compressed. The write
// goes through a temp file and rename so a crash never leaves a
// half-written snapshot.
func Save(path string, workspace canvas.WorkspaceID, savedAt int64, records []backend.Record) error {
	payload, err := codec.Marshal(file{
		Magic:     magic,
		Version:   version,
		Workspace: string(workspace),
		SavedAt:   savedAt,
		Records:   records,
	})
	if err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}

	var compressed bytes.Buffer
	writer, err := zstd.NewWriter(&compressed, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("snapshot: create compressor: %w", err)
	}
	if _, err := writer.Write(payload); err != nil {
		writer.Close()
		return fmt.Errorf("snapshot: compress: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("snapshot: compress: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("snapshot: create directory: %w", err)
	}
	temp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tempPath := temp.Name()
	if _, err := temp.Write(compressed.Bytes()); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("snapshot: write temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("snapshot: close temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("snapshot: replace %s: %w", path, err)
	}
	return nil
}

// Load reads the snapshot at path and returns its records. Returns
// os.ErrNotExist (wrapped) when no snapshot exists, and an error for a
// corrupt file or a workspace mismatch; callers treat every error as a
// cold start.
func Load(path string, workspace canvas.WorkspaceID) ([]backend.Record, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", path, err)
	}

	reader, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open decompressor: %w", err)
	}
	defer reader.Close()
	payload, err := reader.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: decompress %s: %w", path, err)
	}

	var contents file
	if err := codec.Unmarshal(payload, &contents); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", path, err)
	}
	if contents.Magic != magic || contents.Version != version {
		return nil, fmt.Errorf("snapshot: %s has unsupported format %q v%d", path, contents.Magic, contents.Version)
	}
	if contents.Workspace != string(workspace) {
		return nil, fmt.Errorf("snapshot: %s belongs to workspace %q, not %q", path, contents.Workspace, workspace)
	}
	return contents.Records, nil
}
