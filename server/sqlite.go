// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/kennyu/gauntlet-collabcanvas/backend"
	"github.com/kennyu/gauntlet-collabcanvas/lib/sqlitepool"
)

const objectSchema = `
CREATE TABLE IF NOT EXISTS objects (
	workspace  TEXT NOT NULL,
	id         TEXT NOT NULL,
	x          REAL NOT NULL,
	y          REAL NOT NULL,
	width      REAL NOT NULL,
	height     REAL NOT NULL,
	color      TEXT NOT NULL DEFAULT '',
	created_by TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (workspace, id)
);
CREATE INDEX IF NOT EXISTS objects_by_creation ON objects (workspace, created_at, id);
`

// SQLiteStore is an ObjectStore backed by a SQLite database via
// lib/sqlitepool. Last-writer-wins is enforced in SQL, so concurrent
// writers racing through different pool connections still converge.
type SQLiteStore struct {
	pool *sqlitepool.Pool
}

// OpenSQLiteStore opens (creating if needed) the object database at
// path.
func OpenSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, objectSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("server: open object store: %w", err)
	}
	return &SQLiteStore{pool: pool}, nil
}

func (s *SQLiteStore) Close() error { return s.pool.Close() }

func (s *SQLiteStore) LoadAll(ctx context.Context, workspace string) ([]backend.Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var records []backend.Record
	err = sqlitex.Execute(conn, `
		SELECT id, x, y, width, height, color, created_by, created_at, updated_at
		FROM objects WHERE workspace = ? ORDER BY created_at, id`,
		&sqlitex.ExecOptions{
			Args: []any{workspace},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				records = append(records, recordFromRow(workspace, stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("server: load objects: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, record backend.Record) (backend.Record, error) {
	record = clampRecord(record)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return backend.Record{}, err
	}
	defer s.pool.Put(conn)

	// The upsert only replaces when the incoming write is not stale;
	// either way the canonical row is read back afterwards.
	err = sqlitex.Execute(conn, `
		INSERT INTO objects (workspace, id, x, y, width, height, color, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (workspace, id) DO UPDATE SET
			x = excluded.x, y = excluded.y,
			width = excluded.width, height = excluded.height,
			color = excluded.color,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at >= objects.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{
				record.WorkspaceID, record.ID,
				record.X, record.Y, record.Width, record.Height,
				record.Color, record.CreatedBy,
				record.CreatedAt, record.UpdatedAt,
			},
		})
	if err != nil {
		return backend.Record{}, fmt.Errorf("server: insert object %s: %w", record.ID, err)
	}

	stored, ok, err := s.get(conn, record.WorkspaceID, record.ID)
	if err != nil {
		return backend.Record{}, err
	}
	if !ok {
		return backend.Record{}, fmt.Errorf("server: object %s vanished after insert", record.ID)
	}
	return stored, nil
}

func (s *SQLiteStore) Update(ctx context.Context, workspace, id string, patch backend.ObjectPatch) (backend.Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return backend.Record{}, err
	}
	defer s.pool.Put(conn)

	// Read-modify-write inside one transaction: the patch needs the
	// full record for clamping against the object's size.
	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return backend.Record{}, fmt.Errorf("server: begin update: %w", err)
	}
	defer endFn(&err)

	record, ok, err := s.get(conn, workspace, id)
	if err != nil {
		return backend.Record{}, err
	}
	if !ok {
		return backend.Record{}, ErrNotFound
	}
	if patch.UpdatedAt < record.UpdatedAt {
		return record, nil
	}

	record = applyPatch(record, patch)
	err = sqlitex.Execute(conn, `
		UPDATE objects SET x = ?, y = ?, width = ?, height = ?, updated_at = ?
		WHERE workspace = ? AND id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{
				record.X, record.Y, record.Width, record.Height, record.UpdatedAt,
				workspace, id,
			},
		})
	if err != nil {
		return backend.Record{}, fmt.Errorf("server: update object %s: %w", id, err)
	}
	return record, nil
}

func (s *SQLiteStore) get(conn *sqlite.Conn, workspace, id string) (backend.Record, bool, error) {
	var record backend.Record
	found := false
	err := sqlitex.Execute(conn, `
		SELECT id, x, y, width, height, color, created_by, created_at, updated_at
		FROM objects WHERE workspace = ? AND id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{workspace, id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record = recordFromRow(workspace, stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return backend.Record{}, false, fmt.Errorf("server: read object %s: %w", id, err)
	}
	return record, found, nil
}

func recordFromRow(workspace string, stmt *sqlite.Stmt) backend.Record {
	return backend.Record{
		ID:          stmt.ColumnText(0),
		X:           stmt.ColumnFloat(1),
		Y:           stmt.ColumnFloat(2),
		Width:       stmt.ColumnFloat(3),
		Height:      stmt.ColumnFloat(4),
		Color:       stmt.ColumnText(5),
		CreatedBy:   stmt.ColumnText(6),
		CreatedAt:   stmt.ColumnInt64(7),
		UpdatedAt:   stmt.ColumnInt64(8),
		WorkspaceID: workspace,
	}
}
