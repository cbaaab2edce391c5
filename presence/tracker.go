// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/kennyu/gauntlet-collabcanvas/backend"
	"github.com/kennyu/gauntlet-collabcanvas/lib/clock"
)

const (
	// CursorTTL is how long a remote cursor stays visible after its
	// last broadcast. A user who stops moving (or silently disconnects)
	// fades out after this long.
	CursorTTL = 5 * time.Second

	// SweepInterval is how often expired cursors are collected.
	SweepInterval = 2 * time.Second
)

// Cursor is the last known pointer state of one remote user.
type Cursor struct {
	UserID      string
	DisplayName string
	Color       string
	X           float64
	Y           float64

	// SeenAt is the local receive time of the last broadcast, used for
	// TTL expiry. The sender's own timestamp is only used to discard
	// out-of-order messages.
	SeenAt time.Time
}

// RosterEntry is one connected user, with the local user flagged.
type RosterEntry struct {
	backend.Participant
	Self bool
}

// Tracker accumulates presence and cursor state for one workspace. It
// is safe for concurrent use: the sync engine's event loop applies
// updates while callers snapshot Cursors and Roster from any
// goroutine.
type Tracker struct {
	clk  clock.Clock
	self string

	mu      sync.RWMutex
	roster  map[string]backend.Participant
	cursors map[string]trackedCursor
}

type trackedCursor struct {
	cursor    Cursor
	timestamp int64 // sender clock, Unix milliseconds
}

// NewTracker creates an empty tracker. Messages from selfUserID are
// ignored so the local user never sees their own echoed cursor.
func NewTracker(clk clock.Clock, selfUserID string) *Tracker {
	return &Tracker{
		clk:     clk,
		self:    selfUserID,
		roster:  make(map[string]backend.Participant),
		cursors: make(map[string]trackedCursor),
	}
}

// ApplyCursor folds one broadcast into the tracker. Out-of-order
// messages (sender timestamp older than the last applied one) are
// discarded; a Visible=false message removes the cursor immediately.
func (t *Tracker) ApplyCursor(message backend.CursorMessage) {
	if message.UserID == "" || message.UserID == t.self {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if known, ok := t.cursors[message.UserID]; ok && message.Timestamp < known.timestamp {
		return
	}
	if !message.Visible {
		delete(t.cursors, message.UserID)
		return
	}
	t.cursors[message.UserID] = trackedCursor{
		cursor: Cursor{
			UserID:      message.UserID,
			DisplayName: message.DisplayName,
			Color:       message.Color,
			X:           message.X,
			Y:           message.Y,
			SeenAt:      t.clk.Now(),
		},
		timestamp: message.Timestamp,
	}
}

// ApplyPresence folds one roster event into the tracker. A snapshot
// replaces the roster wholesale; a leave also drops the user's cursor
// so it disappears with them instead of waiting out the TTL.
func (t *Tracker) ApplyPresence(event backend.PresenceEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Kind {
	case backend.PresenceSnapshot:
		t.roster = make(map[string]backend.Participant, len(event.Roster))
		for _, participant := range event.Roster {
			t.roster[participant.UserID] = participant
		}
	case backend.PresenceJoin:
		if event.User.UserID != "" {
			t.roster[event.User.UserID] = event.User
		}
	case backend.PresenceLeave:
		delete(t.roster, event.User.UserID)
		delete(t.cursors, event.User.UserID)
	}
}

// Sweep removes cursors whose last broadcast is older than CursorTTL.
// Returns how many were expired.
func (t *Tracker) Sweep() int {
	cutoff := t.clk.Now().Add(-CursorTTL)

	t.mu.Lock()
	defer t.mu.Unlock()
	expired := 0
	for userID, tracked := range t.cursors {
		if tracked.cursor.SeenAt.Before(cutoff) {
			delete(t.cursors, userID)
			expired++
		}
	}
	return expired
}

// Reset clears all state. Called on resubscribe: the server's roster
// snapshot and fresh broadcasts rebuild everything.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roster = make(map[string]backend.Participant)
	t.cursors = make(map[string]trackedCursor)
}

// Cursors returns the live remote cursors, ordered by user id.
func (t *Tracker) Cursors() []Cursor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cursors := make([]Cursor, 0, len(t.cursors))
	for _, tracked := range t.cursors {
		cursors = append(cursors, tracked.cursor)
	}
	sort.Slice(cursors, func(i, j int) bool { return cursors[i].UserID < cursors[j].UserID })
	return cursors
}

// Roster returns the connected users ordered by user id, with the
// local user flagged.
func (t *Tracker) Roster() []RosterEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries := make([]RosterEntry, 0, len(t.roster))
	for userID, participant := range t.roster {
		entries = append(entries, RosterEntry{Participant: participant, Self: userID == t.self})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries
}
