// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"testing"
	"time"

	"github.com/kennyu/gauntlet-collabcanvas/backend"
	"github.com/kennyu/gauntlet-collabcanvas/lib/clock"
)

var trackerEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func cursorAt(userID string, x, y float64, timestamp int64) backend.CursorMessage {
	return backend.CursorMessage{
		UserID:      userID,
		DisplayName: userID,
		Color:       "#3B82F6",
		X:           x,
		Y:           y,
		Visible:     true,
		Timestamp:   timestamp,
	}
}

func TestTrackerIgnoresSelf(t *testing.T) {
	tracker := NewTracker(clock.Fake(trackerEpoch), "me")
	tracker.ApplyCursor(cursorAt("me", 10, 20, 1000))
	if got := tracker.Cursors(); len(got) != 0 {
		t.Fatalf("Cursors() = %v, want empty", got)
	}
}

func TestTrackerLatestPositionWins(t *testing.T) {
	tracker := NewTracker(clock.Fake(trackerEpoch), "me")

	tracker.ApplyCursor(cursorAt("alice", 10, 20, 1000))
	tracker.ApplyCursor(cursorAt("alice", 30, 40, 2000))
	// Out of order; must not roll the position back.
	tracker.ApplyCursor(cursorAt("alice", 99, 99, 1500))

	cursors := tracker.Cursors()
	if len(cursors) != 1 {
		t.Fatalf("got %d cursors, want 1", len(cursors))
	}
	if cursors[0].X != 30 || cursors[0].Y != 40 {
		t.Errorf("cursor = (%v, %v), want (30, 40)", cursors[0].X, cursors[0].Y)
	}
}

func TestTrackerHideRemovesImmediately(t *testing.T) {
	tracker := NewTracker(clock.Fake(trackerEpoch), "me")

	tracker.ApplyCursor(cursorAt("alice", 10, 20, 1000))
	hide := cursorAt("alice", 0, 0, 2000)
	hide.Visible = false
	tracker.ApplyCursor(hide)

	if got := tracker.Cursors(); len(got) != 0 {
		t.Fatalf("Cursors() = %v, want empty after hide", got)
	}
}

func TestTrackerSweepExpiresStaleCursors(t *testing.T) {
	clk := clock.Fake(trackerEpoch)
	tracker := NewTracker(clk, "me")

	tracker.ApplyCursor(cursorAt("alice", 10, 20, 1000))
	clk.Advance(3 * time.Second)
	tracker.ApplyCursor(cursorAt("bob", 30, 40, 2000))

	// Alice is now 3s old, bob is fresh; neither has hit the TTL.
	if expired := tracker.Sweep(); expired != 0 {
		t.Fatalf("Sweep() = %d, want 0", expired)
	}

	clk.Advance(2*time.Second + time.Millisecond)
	if expired := tracker.Sweep(); expired != 1 {
		t.Fatalf("Sweep() = %d, want 1", expired)
	}
	cursors := tracker.Cursors()
	if len(cursors) != 1 || cursors[0].UserID != "bob" {
		t.Errorf("Cursors() = %v, want bob only", cursors)
	}
}

func TestTrackerCursorRefreshResetsTTL(t *testing.T) {
	clk := clock.Fake(trackerEpoch)
	tracker := NewTracker(clk, "me")

	tracker.ApplyCursor(cursorAt("alice", 10, 20, 1000))
	clk.Advance(4 * time.Second)
	tracker.ApplyCursor(cursorAt("alice", 15, 25, 2000))
	clk.Advance(4 * time.Second)

	// 8s since the first broadcast, but only 4s since the refresh.
	if expired := tracker.Sweep(); expired != 0 {
		t.Fatalf("Sweep() = %d, want 0 after refresh", expired)
	}
}

func TestTrackerRoster(t *testing.T) {
	tracker := NewTracker(clock.Fake(trackerEpoch), "me")

	tracker.ApplyPresence(backend.PresenceEvent{
		Kind: backend.PresenceSnapshot,
		Roster: []backend.Participant{
			{UserID: "me", DisplayName: "Me"},
			{UserID: "alice", DisplayName: "Alice"},
		},
	})
	tracker.ApplyPresence(backend.PresenceEvent{
		Kind: backend.PresenceJoin,
		User: backend.Participant{UserID: "bob", DisplayName: "Bob"},
	})

	roster := tracker.Roster()
	if len(roster) != 3 {
		t.Fatalf("got %d roster entries, want 3", len(roster))
	}
	for _, entry := range roster {
		if want := entry.UserID == "me"; entry.Self != want {
			t.Errorf("entry %s Self = %v, want %v", entry.UserID, entry.Self, want)
		}
	}

	tracker.ApplyPresence(backend.PresenceEvent{
		Kind: backend.PresenceLeave,
		User: backend.Participant{UserID: "alice"},
	})
	roster = tracker.Roster()
	if len(roster) != 2 {
		t.Fatalf("got %d roster entries after leave, want 2", len(roster))
	}
}

func TestTrackerLeaveDropsCursor(t *testing.T) {
	tracker := NewTracker(clock.Fake(trackerEpoch), "me")

	tracker.ApplyCursor(cursorAt("alice", 10, 20, 1000))
	tracker.ApplyPresence(backend.PresenceEvent{
		Kind: backend.PresenceLeave,
		User: backend.Participant{UserID: "alice"},
	})

	if got := tracker.Cursors(); len(got) != 0 {
		t.Fatalf("Cursors() = %v, want empty after leave", got)
	}
}

func TestTrackerReset(t *testing.T) {
	tracker := NewTracker(clock.Fake(trackerEpoch), "me")

	tracker.ApplyCursor(cursorAt("alice", 10, 20, 1000))
	tracker.ApplyPresence(backend.PresenceEvent{
		Kind:   backend.PresenceSnapshot,
		Roster: []backend.Participant{{UserID: "alice"}},
	})
	tracker.Reset()

	if got := tracker.Cursors(); len(got) != 0 {
		t.Errorf("Cursors() = %v after reset", got)
	}
	if got := tracker.Roster(); len(got) != 0 {
		t.Errorf("Roster() = %v after reset", got)
	}
}
