// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot persists a compressed copy of a workspace's objects
// so a restarted client paints the last known canvas instantly while
// the authoritative resync runs in the background. The cache is an
// optimization only: a missing, stale, or corrupt snapshot file is
// never an error, just a cold start.
package snapshot
