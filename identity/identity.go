// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/kennyu/gauntlet-collabcanvas/canvas"
)

// Identity is the current user as seen by the sync engine. The zero
// value means "no authenticated user": the mutation pipeline refuses
// intents issued without one.
type Identity struct {
	UserID      canvas.UserID
	DisplayName string

	// Color is the deterministic display color for this user, one of
	// the canvas palette entries.
	Color string
}

// New builds an Identity for the given user, deriving the display
// color from the user id. DisplayName falls back to the user id when
// empty.
func New(userID canvas.UserID, displayName string) Identity {
	if displayName == "" {
		displayName = string(userID)
	}
	return Identity{
		UserID:      userID,
		DisplayName: displayName,
		Color:       ColorFor(userID),
	}
}

// IsZero reports whether no authenticated user is present.
func (id Identity) IsZero() bool { return id.UserID == "" }

// ColorFor maps a user id into the fixed palette. The mapping is a
// BLAKE3 hash of the id, so it is stable across sessions, processes,
// and clients.
func ColorFor(userID canvas.UserID) string {
	sum := blake3.Sum256([]byte(userID))
	index := binary.BigEndian.Uint32(sum[:4]) % uint32(len(canvas.Palette))
	return canvas.Palette[index]
}
