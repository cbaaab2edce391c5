// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"fmt"

	"github.com/kennyu/gauntlet-collabcanvas/canvas"
)

// Record is the wire shape of a canvas object. Field names are part of
// the backend contract and must not change.
type Record struct {
	ID          string  `json:"id" cbor:"id"`
	X           float64 `json:"x" cbor:"x"`
	Y           float64 `json:"y" cbor:"y"`
	Width       float64 `json:"width" cbor:"width"`
	Height      float64 `json:"height" cbor:"height"`
	Color       string  `json:"color" cbor:"color"`
	CreatedBy   string  `json:"createdBy,omitempty" cbor:"createdBy,omitempty"`
	CreatedAt   int64   `json:"createdAt" cbor:"createdAt"`
	UpdatedAt   int64   `json:"updatedAt" cbor:"updatedAt"`
	WorkspaceID string  `json:"workspaceId" cbor:"workspaceId"`
}

// Validate checks the fields every record must carry. Geometry is not
// validated here — positions are clamped, not rejected, on both sides
// of the wire.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record missing id")
	}
	if r.WorkspaceID == "" {
		return fmt.Errorf("record %s missing workspaceId", r.ID)
	}
	if r.UpdatedAt <= 0 {
		return fmt.Errorf("record %s missing updatedAt", r.ID)
	}
	return nil
}

// Object converts the record to the domain model.
func (r Record) Object() canvas.Object {
	return canvas.Object{
		ID:        canvas.ObjectID(r.ID),
		X:         r.X,
		Y:         r.Y,
		Width:     r.Width,
		Height:    r.Height,
		Color:     r.Color,
		CreatedBy: canvas.UserID(r.CreatedBy),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// RecordFromObject converts a domain object to its wire shape, scoped
// to the given workspace.
func RecordFromObject(workspaceID canvas.WorkspaceID, o canvas.Object) Record {
	return Record{
		ID:          string(o.ID),
		X:           o.X,
		Y:           o.Y,
		Width:       o.Width,
		Height:      o.Height,
		Color:       o.Color,
		CreatedBy:   string(o.CreatedBy),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		WorkspaceID: string(workspaceID),
	}
}

// ObjectPatch is a partial update of a record. Nil fields are left
// unchanged. UpdatedAt is required — it carries the writer's
// last-writer-wins timestamp.
type ObjectPatch struct {
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`

	UpdatedAt int64 `json:"updatedAt"`
}

// ChangeKind distinguishes the backend's notification kinds. Create
// and update reconcile identically; the distinction exists only
// because the backend signals them separately.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
)

// ChangeEvent is one notification on the change feed.
type ChangeEvent struct {
	Kind   ChangeKind `json:"kind"`
	Record Record     `json:"record"`
}

// Participant identifies one user on the presence channel.
type Participant struct {
	UserID      string `cbor:"userId" json:"userId"`
	DisplayName string `cbor:"displayName" json:"displayName"`
	Color       string `cbor:"color" json:"color"`
}

// CursorMessage is one fire-and-forget cursor broadcast. Visible false
// hides the sender's cursor immediately instead of waiting out the
// receiver-side TTL.
type CursorMessage struct {
	UserID      string  `cbor:"userId" json:"userId"`
	DisplayName string  `cbor:"displayName" json:"displayName"`
	Color       string  `cbor:"color" json:"color"`
	X           float64 `cbor:"x" json:"x"`
	Y           float64 `cbor:"y" json:"y"`
	Visible     bool    `cbor:"visible" json:"visible"`

	// Timestamp is the sender's wall clock in Unix milliseconds.
	Timestamp int64 `cbor:"timestamp" json:"timestamp"`
}

// PresenceKind is the presence event type.
type PresenceKind string

const (
	PresenceJoin  PresenceKind = "join"
	PresenceLeave PresenceKind = "leave"

	// PresenceSnapshot carries the full roster. Sent once on
	// (re)subscribe so late joiners see who is already here.
	PresenceSnapshot PresenceKind = "snapshot"
)

// PresenceEvent is one notification on the presence channel. User is
// set for join/leave; Roster is set for snapshot.
type PresenceEvent struct {
	Kind   PresenceKind  `cbor:"kind" json:"kind"`
	User   Participant   `cbor:"user,omitempty" json:"user,omitempty"`
	Roster []Participant `cbor:"roster,omitempty" json:"roster,omitempty"`
}

// Frame is the envelope for all messages on the presence socket. Only
// one field is set per frame.
type Frame struct {
	Presence *PresenceEvent `cbor:"presence,omitempty"`
	Cursor   *CursorMessage `cbor:"cursor,omitempty"`
}
