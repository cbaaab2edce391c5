// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine is the client-side synchronization core for one
// shared workspace. It owns the authoritative local object store,
// reconciles the backend's change feed into it, runs the optimistic
// mutation pipeline (create, drag, drag-end), relays ephemeral
// presence and cursor traffic, and supervises the connection
// lifecycle with bounded-backoff reconnects and full resync after
// every outage.
//
// Concurrency model: the engine is single-writer. One run-loop
// goroutine applies every mutation; intents, feed events, write
// completions, and status changes are posted to it as tasks and
// processed one at a time, so no mutation path races another.
// Listener callbacks registered through the Subscribe methods fire
// synchronously on that loop and must not block. Snapshot reads
// (Objects, Cursors, Roster, Status) are safe from any goroutine.
package engine
