// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the standard SQLite connection pool for
// CollabCanvas server components.
//
// It wraps zombiezen.com/go/sqlite with production defaults: WAL
// journal mode so readers never block the single writer, NORMAL
// synchronous for process-crash durability without fsync-per-commit
// overhead, memory-mapped reads, and a busy timeout that absorbs write
// contention instead of surfacing SQLITE_BUSY.
//
// Callers [Pool.Take] a connection, perform work, and [Pool.Put] it
// back. Connections are NOT safe for concurrent use — each goroutine
// must hold its own connection for the duration of its work.
//
// The package is intentionally thin: it applies the pragmas and
// exposes the zombiezen types directly. Components write SQL, use
// sqlitex.Execute for cached statements, and manage transactions with
// sqlitex.ImmediateTransaction; there is no query builder layer.
package sqlitepool
