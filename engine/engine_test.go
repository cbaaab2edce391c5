// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kennyu/gauntlet-collabcanvas/backend"
	"github.com/kennyu/gauntlet-collabcanvas/canvas"
	"github.com/kennyu/gauntlet-collabcanvas/identity"
	"github.com/kennyu/gauntlet-collabcanvas/lib/clock"
	"github.com/kennyu/gauntlet-collabcanvas/lib/testutil"
	"github.com/kennyu/gauntlet-collabcanvas/presence"
)

const (
	testTimeout   = 5 * time.Second
	testWorkspace = canvas.WorkspaceID("main")
)

// newTestEngine starts an engine against the shared in-memory backend
// with fast reconnects. Closed via t.Cleanup.
func newTestEngine(t *testing.T, m *backend.Memory, user string) *Engine {
	t.Helper()
	e := newStoppedTestEngine(t, m, user)
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, e, StatusSubscribed)
	return e
}

func newStoppedTestEngine(t *testing.T, m *backend.Memory, user string) *Engine {
	t.Helper()
	var id identity.Identity
	if user != "" {
		id = identity.New(canvas.UserID(user), user)
	}
	e, err := New(Config{
		Workspace:      testWorkspace,
		Identity:       id,
		Backend:        m,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func waitForStatus(t *testing.T, e *Engine, want Status) {
	t.Helper()
	testutil.Eventually(t, func() bool { return e.Status() == want },
		testTimeout, "waiting for status %s", want)
}

func waitForObject(t *testing.T, e *Engine, id canvas.ObjectID) canvas.Object {
	t.Helper()
	testutil.Eventually(t, func() bool {
		_, ok := e.Object(id)
		return ok
	}, testTimeout, "waiting for object %s", id)
	object, _ := e.Object(id)
	return object
}

func TestCreateRequiresIdentity(t *testing.T) {
	e := newTestEngine(t, backend.NewMemory(nil), "")
	if _, err := e.CreateAt(canvas.Point{X: 100, Y: 100}); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("CreateAt err = %v, want ErrNoIdentity", err)
	}
	if err := e.DragTo("any", canvas.Point{}); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("DragTo err = %v, want ErrNoIdentity", err)
	}
}

func TestCreateRoundTrip(t *testing.T) {
	m := backend.NewMemory(nil)
	alice := newTestEngine(t, m, "alice")
	bob := newTestEngine(t, m, "bob")

	id, err := alice.CreateAt(canvas.Point{X: 500, Y: 600})
	if err != nil {
		t.Fatalf("CreateAt: %v", err)
	}

	// Instant local echo on the creator.
	local := waitForObject(t, alice, id)
	if local.Width != canvas.DefaultSize || local.Height != canvas.DefaultSize {
		t.Errorf("local object size = %vx%v, want default", local.Width, local.Height)
	}
	if local.CreatedBy != "alice" {
		t.Errorf("CreatedBy = %q, want alice", local.CreatedBy)
	}

	// The peer converges to the identical object through the feed.
	remote := waitForObject(t, bob, id)
	if remote != local {
		t.Errorf("peer object = %+v, want %+v", remote, local)
	}

	// The durable record survives a cold load.
	records, err := m.LoadAll(context.Background(), testWorkspace)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(records) != 1 || records[0].ID != string(id) {
		t.Fatalf("LoadAll = %+v, want the created object", records)
	}
}

func TestCreateOutOfBoundsClamps(t *testing.T) {
	m := backend.NewMemory(nil)
	e := newTestEngine(t, m, "alice")

	id, err := e.CreateAt(canvas.Point{X: -500, Y: canvas.WorkspaceSize + 500})
	if err != nil {
		t.Fatalf("CreateAt: %v", err)
	}
	object := waitForObject(t, e, id)
	if object.X != 0 {
		t.Errorf("X = %v, want 0", object.X)
	}
	if want := canvas.WorkspaceSize - object.Height; object.Y != want {
		t.Errorf("Y = %v, want %v", object.Y, want)
	}
}

func TestCreateRollbackOnFailure(t *testing.T) {
	m := backend.NewMemory(nil)
	e := newTestEngine(t, m, "alice")
	m.SetFailCreates(true)

	id, err := e.CreateAt(canvas.Point{X: 100, Y: 100})
	if err != nil {
		t.Fatalf("CreateAt: %v", err)
	}

	// The optimistic object is rolled back once the write fails.
	testutil.Eventually(t, func() bool {
		_, ok := e.Object(id)
		return !ok
	}, testTimeout, "waiting for rollback of %s", id)

	records, err := m.LoadAll(context.Background(), testWorkspace)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("backend has %d records after failed create, want 0", len(records))
	}
}

func TestCreateAssignsRoundRobinColors(t *testing.T) {
	e := newTestEngine(t, backend.NewMemory(nil), "alice")

	var colors []string
	for i := 0; i < 3; i++ {
		id, err := e.CreateAt(canvas.Point{X: float64(100 * i), Y: 100})
		if err != nil {
			t.Fatalf("CreateAt: %v", err)
		}
		colors = append(colors, waitForObject(t, e, id).Color)
	}
	for i, want := range []string{canvas.PaletteColor(0), canvas.PaletteColor(1), canvas.PaletteColor(2)} {
		if colors[i] != want {
			t.Errorf("object %d color = %s, want %s", i, colors[i], want)
		}
	}
}

func TestDragLocalEchoAndCommit(t *testing.T) {
	m := backend.NewMemory(nil)
	e := newTestEngine(t, m, "alice")

	id, err := e.CreateAt(canvas.Point{X: 500, Y: 500})
	if err != nil {
		t.Fatalf("CreateAt: %v", err)
	}
	waitForObject(t, e, id)

	// Per-frame drags echo locally without touching the backend.
	for _, p := range []canvas.Point{{X: 600, Y: 500}, {X: 700, Y: 520}, {X: 800, Y: 540}} {
		if err := e.DragTo(id, p); err != nil {
			t.Fatalf("DragTo: %v", err)
		}
	}
	testutil.Eventually(t, func() bool {
		object, _ := e.Object(id)
		return object.X == 800 && object.Y == 540
	}, testTimeout, "waiting for local drag echo")

	if err := e.DragEnd(id); err != nil {
		t.Fatalf("DragEnd: %v", err)
	}
	testutil.Eventually(t, func() bool {
		records, err := m.LoadAll(context.Background(), testWorkspace)
		if err != nil || len(records) != 1 {
			return false
		}
		return records[0].X == 800 && records[0].Y == 540
	}, testTimeout, "waiting for durable committed position")
}

func TestDragClampsToBounds(t *testing.T) {
	e := newTestEngine(t, backend.NewMemory(nil), "alice")

	id, err := e.CreateAt(canvas.Point{X: 500, Y: 500})
	if err != nil {
		t.Fatalf("CreateAt: %v", err)
	}
	waitForObject(t, e, id)

	if err := e.DragTo(id, canvas.Point{X: -1000, Y: canvas.WorkspaceSize * 2}); err != nil {
		t.Fatalf("DragTo: %v", err)
	}
	testutil.Eventually(t, func() bool {
		object, _ := e.Object(id)
		return object.X == 0 && object.Y == canvas.WorkspaceSize-object.Height
	}, testTimeout, "waiting for clamped drag position")
}

func TestDragEndFailureKeepsOptimisticState(t *testing.T) {
	m := backend.NewMemory(nil)
	e := newTestEngine(t, m, "alice")

	id, err := e.CreateAt(canvas.Point{X: 500, Y: 500})
	if err != nil {
		t.Fatalf("CreateAt: %v", err)
	}
	created := waitForObject(t, e, id)

	m.SetFailUpdates(true)
	if err := e.DragTo(id, canvas.Point{X: 900, Y: 900}); err != nil {
		t.Fatalf("DragTo: %v", err)
	}
	if err := e.DragEnd(id); err != nil {
		t.Fatalf("DragEnd: %v", err)
	}

	// The durable state keeps the pre-drag position; the local state
	// keeps the newer optimistic one until a later writer supersedes
	// it. The failed commit must not crash or wedge the engine.
	testutil.Eventually(t, func() bool {
		records, err := m.LoadAll(context.Background(), testWorkspace)
		if err != nil || len(records) != 1 {
			return false
		}
		return records[0].X == created.X && records[0].Y == created.Y
	}, testTimeout, "backend keeps pre-drag position")
	if object, _ := e.Object(id); object.X != 900 {
		t.Errorf("local X = %v, want optimistic 900", object.X)
	}
	waitForStatus(t, e, StatusSubscribed)
}

func TestConcurrentDragConvergence(t *testing.T) {
	m := backend.NewMemory(nil)
	alice := newTestEngine(t, m, "alice")
	bob := newTestEngine(t, m, "bob")

	id, err := alice.CreateAt(canvas.Point{X: 500, Y: 500})
	if err != nil {
		t.Fatalf("CreateAt: %v", err)
	}
	waitForObject(t, alice, id)
	waitForObject(t, bob, id)

	// Alice commits first; bob commits strictly later, so bob's
	// position is the last write and must win everywhere.
	if err := alice.DragTo(id, canvas.Point{X: 100, Y: 100}); err != nil {
		t.Fatalf("alice DragTo: %v", err)
	}
	if err := alice.DragEnd(id); err != nil {
		t.Fatalf("alice DragEnd: %v", err)
	}
	time.Sleep(5 * time.Millisecond) // strictly later wall clock
	if err := bob.DragTo(id, canvas.Point{X: 2000, Y: 2000}); err != nil {
		t.Fatalf("bob DragTo: %v", err)
	}
	if err := bob.DragEnd(id); err != nil {
		t.Fatalf("bob DragEnd: %v", err)
	}

	for name, e := range map[string]*Engine{"alice": alice, "bob": bob} {
		e := e
		testutil.Eventually(t, func() bool {
			object, ok := e.Object(id)
			return ok && object.X == 2000 && object.Y == 2000
		}, testTimeout, "%s converges to the last write", name)
	}
}

func TestReconnectResync(t *testing.T) {
	m := backend.NewMemory(nil)
	e := newTestEngine(t, m, "alice")

	m.DropConnections()
	waitForStatus(t, e, StatusDegraded)

	// Two writes land while this client is offline.
	ctx := context.Background()
	for _, record := range []backend.Record{
		{ID: "missed-1", X: 10, Y: 10, Width: 100, Height: 100, Color: "#EF4444",
			CreatedAt: 1000, UpdatedAt: 1000, WorkspaceID: string(testWorkspace)},
		{ID: "missed-2", X: 20, Y: 20, Width: 100, Height: 100, Color: "#F97316",
			CreatedAt: 2000, UpdatedAt: 2000, WorkspaceID: string(testWorkspace)},
	} {
		if _, err := m.CreateObject(ctx, record); err != nil {
			t.Fatalf("CreateObject(%s): %v", record.ID, err)
		}
	}

	// The supervisor reconnects on its own and hydrates the gap.
	waitForStatus(t, e, StatusSubscribed)
	waitForObject(t, e, "missed-1")
	waitForObject(t, e, "missed-2")
}

func TestStatusLifecycle(t *testing.T) {
	m := backend.NewMemory(nil)
	e := newStoppedTestEngine(t, m, "alice")

	statuses := make(chan Status, 16)
	e.SubscribeStatus(func(s Status) { statuses <- s })
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	seen := func(want Status) {
		t.Helper()
		for {
			got := testutil.RequireReceive(t, statuses, testTimeout, "waiting for status %s", want)
			if got == want {
				return
			}
		}
	}
	seen(StatusSubscribed)

	m.DropConnections()
	seen(StatusDegraded)
	seen(StatusSubscribed)

	e.Close()
	seen(StatusTerminated)
}

func TestObjectListenerFiresOnChange(t *testing.T) {
	m := backend.NewMemory(nil)
	e := newTestEngine(t, m, "alice")

	updates := make(chan []canvas.Object, 16)
	cancel := e.SubscribeObjects(func(objects []canvas.Object) { updates <- objects })

	// Initial snapshot fires immediately.
	initial := testutil.RequireReceive(t, updates, testTimeout, "initial object snapshot")
	if len(initial) != 0 {
		t.Fatalf("initial snapshot = %v, want empty", initial)
	}

	if _, err := e.CreateAt(canvas.Point{X: 100, Y: 100}); err != nil {
		t.Fatalf("CreateAt: %v", err)
	}
	objects := testutil.RequireReceive(t, updates, testTimeout, "post-create snapshot")
	if len(objects) != 1 {
		t.Fatalf("snapshot = %v, want one object", objects)
	}

	cancel()
}

func TestCursorRoundTrip(t *testing.T) {
	m := backend.NewMemory(nil)
	alice := newTestEngine(t, m, "alice")
	bob := newTestEngine(t, m, "bob")

	testutil.Eventually(t, func() bool {
		bob.MoveCursor(canvas.Point{X: 123, Y: 456})
		for _, cursor := range alice.Cursors() {
			if cursor.UserID == "bob" && cursor.X == 123 && cursor.Y == 456 {
				return true
			}
		}
		return false
	}, testTimeout, "alice sees bob's cursor")

	// Own cursor is never echoed back.
	for _, cursor := range bob.Cursors() {
		if cursor.UserID == "bob" {
			t.Fatalf("bob sees own cursor: %+v", cursor)
		}
	}
}

func TestCursorHiddenOnPeerClose(t *testing.T) {
	m := backend.NewMemory(nil)
	alice := newTestEngine(t, m, "alice")
	bob := newTestEngine(t, m, "bob")

	testutil.Eventually(t, func() bool {
		bob.MoveCursor(canvas.Point{X: 10, Y: 20})
		return len(alice.Cursors()) == 1
	}, testTimeout, "alice sees bob's cursor")

	// Graceful close hides immediately, well before any TTL.
	bob.Close()
	testutil.Eventually(t, func() bool {
		return len(alice.Cursors()) == 0
	}, testTimeout, "bob's cursor removed after close")
}

func TestCursorExpiresAfterTTL(t *testing.T) {
	m := backend.NewMemory(nil)
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e, err := New(Config{
		Workspace: testWorkspace,
		Identity:  identity.New("alice", "Alice"),
		Backend:   m,
		Clock:     clk,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, e, StatusSubscribed)

	// A silent peer sends one cursor message straight through the
	// backend, then goes quiet without a graceful leave.
	peer, err := m.JoinPresence(context.Background(), testWorkspace, backend.Participant{UserID: "ghost"})
	if err != nil {
		t.Fatalf("JoinPresence: %v", err)
	}
	if err := peer.SendCursor(backend.CursorMessage{
		UserID: "ghost", X: 1, Y: 2, Visible: true, Timestamp: clk.Now().UnixMilli(),
	}); err != nil {
		t.Fatalf("SendCursor: %v", err)
	}
	testutil.Eventually(t, func() bool {
		return len(e.Cursors()) == 1
	}, testTimeout, "cursor visible before TTL")

	// Advance past the TTL; the periodic sweep removes the cursor.
	clk.Advance(presence.CursorTTL + presence.SweepInterval)
	testutil.Eventually(t, func() bool {
		return len(e.Cursors()) == 0
	}, testTimeout, "cursor expired after TTL")
}

func TestRosterJoinLeave(t *testing.T) {
	m := backend.NewMemory(nil)
	alice := newTestEngine(t, m, "alice")

	testutil.Eventually(t, func() bool {
		roster := alice.Roster()
		return len(roster) == 1 && roster[0].Self
	}, testTimeout, "alice sees self in roster")

	bob := newTestEngine(t, m, "bob")
	testutil.Eventually(t, func() bool {
		return len(alice.Roster()) == 2
	}, testTimeout, "alice sees bob join")
	testutil.Eventually(t, func() bool {
		return len(bob.Roster()) == 2
	}, testTimeout, "bob's snapshot has both users")

	bob.Close()
	testutil.Eventually(t, func() bool {
		return len(alice.Roster()) == 1
	}, testTimeout, "alice sees bob leave")
}

func TestSelectionIsLocalOnly(t *testing.T) {
	m := backend.NewMemory(nil)
	alice := newTestEngine(t, m, "alice")
	bob := newTestEngine(t, m, "bob")

	id, err := alice.CreateAt(canvas.Point{X: 100, Y: 100})
	if err != nil {
		t.Fatalf("CreateAt: %v", err)
	}
	waitForObject(t, bob, id)

	alice.Select(id)
	if selected, ok := alice.Selected(); !ok || selected != id {
		t.Fatalf("alice.Selected() = %v, %v", selected, ok)
	}
	if _, ok := bob.Selected(); ok {
		t.Fatal("selection leaked to the peer")
	}
}

func TestSnapshotHydration(t *testing.T) {
	m := backend.NewMemory(nil)
	path := filepath.Join(t.TempDir(), "main.snapshot")

	first, err := New(Config{
		Workspace:    testWorkspace,
		Identity:     identity.New("alice", "Alice"),
		Backend:      m,
		SnapshotPath: path,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := first.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	id, err := first.CreateAt(canvas.Point{X: 500, Y: 500})
	if err != nil {
		t.Fatalf("CreateAt: %v", err)
	}
	waitForObject(t, first, id)
	first.Close()

	// A backend that refuses loads: the only possible source of
	// objects is the snapshot cache.
	m.SetFailLoads(true)
	second, err := New(Config{
		Workspace:    testWorkspace,
		Identity:     identity.New("alice", "Alice"),
		Backend:      m,
		SnapshotPath: path,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { second.Close() })
	if err := second.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, ok := second.Object(id); !ok {
		t.Fatal("restarted engine missing cached object")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	e := newTestEngine(t, backend.NewMemory(nil), "alice")
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if e.Status() != StatusTerminated {
		t.Fatalf("Status = %v, want terminated", e.Status())
	}
}
