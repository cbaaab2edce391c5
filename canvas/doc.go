// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

// Package canvas defines the shared workspace object model and the
// in-memory Object Store that the rendering layer reads.
//
// An [Object] is a positioned, sized, colored rectangle scoped to a
// workspace. All geometry is clamped to the workspace bounds: an
// object's rectangle never extends outside [0, WorkspaceSize] on
// either axis, and its size never drops below MinSize. Clamping is a
// pure function ([ClampPosition], [Object.Clamped]) applied on every
// mutation path — optimistic, drag-in-progress, and reconciled.
//
// The [Store] is the single authoritative in-memory view of the
// workspace. Concurrent edits converge through last-writer-wins:
// [Store.Upsert] replaces an existing entry only when the incoming
// UpdatedAt is greater than or equal to the stored one, and silently
// discards stale records. Stale updates are an expected, frequent
// event under concurrent editing, not a failure.
package canvas
