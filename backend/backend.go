// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"

	"github.com/kennyu/gauntlet-collabcanvas/canvas"
)

// Backend is the full boundary the sync engine depends on: durable
// object writes, the change feed, and the ephemeral presence channel.
//
// Delivery contract: the change feed is at-least-once and unordered
// across distinct writers, but preserves one writer's order on a
// single connection. The presence channel is best-effort only.
type Backend interface {
	// LoadAll returns all objects in the workspace, ordered by
	// creation time. Used for initial hydration and for every
	// post-outage resync.
	LoadAll(ctx context.Context, workspace canvas.WorkspaceID) ([]Record, error)

	// CreateObject durably inserts a record. The client-chosen id is
	// preserved, so the caller's optimistic state and the confirmed
	// state refer to the same logical object without an id remap.
	CreateObject(ctx context.Context, record Record) (Record, error)

	// UpdateObject applies a partial update to one object. Fails with
	// ErrCodeNotFound when the object does not exist in the given
	// workspace.
	UpdateObject(ctx context.Context, workspace canvas.WorkspaceID, id canvas.ObjectID, patch ObjectPatch) (Record, error)

	// SubscribeChanges opens the change notification stream for a
	// workspace.
	SubscribeChanges(ctx context.Context, workspace canvas.WorkspaceID) (ChangeSubscription, error)

	// JoinPresence announces self on the workspace's presence channel
	// and opens the ephemeral stream. The server replies with a full
	// roster snapshot before incremental join/leave events.
	JoinPresence(ctx context.Context, workspace canvas.WorkspaceID, self Participant) (PresenceSubscription, error)
}

// ChangeSubscription is one open change feed. The Events channel stays
// open until the subscription terminates; Done is closed on
// termination, after which Err reports the cause (nil for a local
// Close).
type ChangeSubscription interface {
	Events() <-chan ChangeEvent
	Done() <-chan struct{}
	Err() error
	Close() error
}

// PresenceSubscription is one open presence/cursor channel. Cursor
// delivery is lossy under backpressure — every message is a complete
// replacement of the sender's state, so dropping intermediates is
// safe.
type PresenceSubscription interface {
	Events() <-chan PresenceEvent
	Cursors() <-chan CursorMessage

	// SendCursor broadcasts the local cursor state. Fire-and-forget;
	// an error means the channel is down, not that delivery failed.
	SendCursor(message CursorMessage) error

	Done() <-chan struct{}
	Err() error

	// Close leaves the presence channel. Implementations send an
	// explicit leave/hide to the server when the transport allows a
	// graceful close, so peers don't wait out the cursor TTL.
	Close() error
}
