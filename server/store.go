// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/kennyu/gauntlet-collabcanvas/backend"
	"github.com/kennyu/gauntlet-collabcanvas/canvas"
)

// ErrNotFound is returned by ObjectStore.Update for an unknown object.
var ErrNotFound = errors.New("server: object not found")

// ObjectStore is the durable object state behind the REST API. All
// implementations enforce last-writer-wins and clamping, so a stale or
// out-of-bounds write can never corrupt the stored state regardless of
// which client sent it.
type ObjectStore interface {
	// LoadAll returns a workspace's objects ordered by creation time,
	// ties broken by id.
	LoadAll(ctx context.Context, workspace string) ([]backend.Record, error)

	// Insert upserts a record under last-writer-wins and returns the
	// stored canonical state (the existing record when the incoming
	// one was stale).
	Insert(ctx context.Context, record backend.Record) (backend.Record, error)

	// Update applies a patch under last-writer-wins and returns the
	// stored state. ErrNotFound when the object does not exist in the
	// workspace.
	Update(ctx context.Context, workspace, id string, patch backend.ObjectPatch) (backend.Record, error)

	Close() error
}

// clampRecord normalizes a record's geometry to the workspace bounds.
func clampRecord(record backend.Record) backend.Record {
	workspace := record.WorkspaceID
	record = backend.RecordFromObject(canvas.WorkspaceID(workspace), record.Object().Clamped())
	return record
}

// applyPatch folds a patch into a record. The caller has already
// checked the last-writer-wins condition.
func applyPatch(record backend.Record, patch backend.ObjectPatch) backend.Record {
	if patch.X != nil {
		record.X = *patch.X
	}
	if patch.Y != nil {
		record.Y = *patch.Y
	}
	if patch.Width != nil {
		record.Width = *patch.Width
	}
	if patch.Height != nil {
		record.Height = *patch.Height
	}
	record.UpdatedAt = patch.UpdatedAt
	return clampRecord(record)
}

// MemoryStore is an ObjectStore held entirely in process memory.
// Selected when no database path is configured; nothing survives a
// restart.
type MemoryStore struct {
	mu         sync.Mutex
	workspaces map[string]map[string]backend.Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{workspaces: make(map[string]map[string]backend.Record)}
}

func (s *MemoryStore) LoadAll(ctx context.Context, workspace string) ([]backend.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	objects := s.workspaces[workspace]
	records := make([]backend.Record, 0, len(objects))
	for _, record := range objects {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt < records[j].CreatedAt
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

func (s *MemoryStore) Insert(ctx context.Context, record backend.Record) (backend.Record, error) {
	record = clampRecord(record)

	s.mu.Lock()
	defer s.mu.Unlock()
	objects := s.workspaces[record.WorkspaceID]
	if objects == nil {
		objects = make(map[string]backend.Record)
		s.workspaces[record.WorkspaceID] = objects
	}
	if existing, ok := objects[record.ID]; ok && record.UpdatedAt < existing.UpdatedAt {
		return existing, nil
	}
	objects[record.ID] = record
	return record, nil
}

func (s *MemoryStore) Update(ctx context.Context, workspace, id string, patch backend.ObjectPatch) (backend.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.workspaces[workspace][id]
	if !ok {
		return backend.Record{}, ErrNotFound
	}
	if patch.UpdatedAt < record.UpdatedAt {
		return record, nil
	}
	record = applyPatch(record, patch)
	s.workspaces[workspace][id] = record
	return record, nil
}

func (s *MemoryStore) Close() error { return nil }
