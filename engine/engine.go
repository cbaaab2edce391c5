// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kennyu/gauntlet-collabcanvas/backend"
	"github.com/kennyu/gauntlet-collabcanvas/canvas"
	"github.com/kennyu/gauntlet-collabcanvas/identity"
	"github.com/kennyu/gauntlet-collabcanvas/lib/clock"
	"github.com/kennyu/gauntlet-collabcanvas/presence"
	"github.com/kennyu/gauntlet-collabcanvas/snapshot"
)

// ErrNoIdentity is returned by mutation intents when the engine was
// configured without an authenticated user.
var ErrNoIdentity = errors.New("engine: no identity configured")

// ErrClosed is returned by intents issued after Close.
var ErrClosed = errors.New("engine: closed")

const (
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 15 * time.Second

	// taskBuffer bounds the run-loop mailbox. Tasks are small and the
	// loop never blocks, so the buffer only absorbs bursts.
	taskBuffer = 256
)

// Config configures an Engine. Workspace and Backend are required;
// everything else has a usable default.
type Config struct {
	// Workspace is the shared workspace this engine synchronizes.
	Workspace canvas.WorkspaceID

	// Identity is the local user. The zero value is accepted: the
	// engine then runs read-only, refusing mutation intents with
	// ErrNoIdentity while still reconciling the feed.
	Identity identity.Identity

	// Backend is the server boundary.
	Backend backend.Backend

	// Clock drives backoff, the cursor TTL sweep, and the broadcast
	// rate gate. Defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// SnapshotPath, when non-empty, names a local cache file: loaded
	// on Start for instant paint, written on Close. Errors on either
	// side are logged and ignored.
	SnapshotPath string

	// InitialBackoff and MaxBackoff bound the reconnect delay.
	// Defaults: 500 ms and 15 s.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Engine is the synchronization core for one workspace. Create with
// New, then Start; Close releases everything.
type Engine struct {
	workspace canvas.WorkspaceID
	id        identity.Identity
	backend   backend.Backend
	clk       clock.Clock
	logger    *slog.Logger

	snapshotPath   string
	initialBackoff time.Duration
	maxBackoff     time.Duration

	store       *canvas.Store
	tracker     *presence.Tracker
	broadcaster *presence.Broadcaster

	// colorCounter assigns object colors round-robin per client.
	colorCounter atomic.Int64

	tasks          chan func()
	quit           chan struct{} // closed by Close; stops the loop and drops new tasks
	loopDone       chan struct{}
	supervisorDone chan struct{}
	runCtx         context.Context
	cancel         context.CancelFunc
	closeOnce      sync.Once
	started        atomic.Bool

	// resyncRequests asks the supervisor for a full reload without a
	// reconnect. Capacity 1: concurrent requests coalesce.
	resyncRequests chan struct{}

	stateMu  sync.Mutex
	status   Status
	selected canvas.ObjectID

	// Listener registries. Loop-only; never touched off-loop.
	nextListenerID  int
	objectListeners map[int]func([]canvas.Object)
	cursorListeners map[int]func([]presence.Cursor)
	rosterListeners map[int]func([]presence.RosterEntry)
	statusListeners map[int]func(Status)
}

// New validates the config and builds an engine. The engine is inert
// until Start.
func New(config Config) (*Engine, error) {
	if config.Workspace == "" {
		return nil, fmt.Errorf("engine: Workspace is required")
	}
	if config.Backend == nil {
		return nil, fmt.Errorf("engine: Backend is required")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("workspace", string(config.Workspace))

	initialBackoff := config.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = defaultInitialBackoff
	}
	maxBackoff := config.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}

	self := backend.Participant{
		UserID:      string(config.Identity.UserID),
		DisplayName: config.Identity.DisplayName,
		Color:       config.Identity.Color,
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &Engine{
		workspace:      config.Workspace,
		id:             config.Identity,
		backend:        config.Backend,
		clk:            clk,
		logger:         logger,
		snapshotPath:   config.SnapshotPath,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,

		store:       canvas.NewStore(),
		tracker:     presence.NewTracker(clk, string(config.Identity.UserID)),
		broadcaster: presence.NewBroadcaster(clk, self, logger),

		tasks:          make(chan func(), taskBuffer),
		quit:           make(chan struct{}),
		loopDone:       make(chan struct{}),
		supervisorDone: make(chan struct{}),
		runCtx:         runCtx,
		cancel:         cancel,
		resyncRequests: make(chan struct{}, 1),

		status:          StatusConnecting,
		objectListeners: make(map[int]func([]canvas.Object)),
		cursorListeners: make(map[int]func([]presence.Cursor)),
		rosterListeners: make(map[int]func([]presence.RosterEntry)),
		statusListeners: make(map[int]func(Status)),
	}, nil
}

// Start hydrates the store from the snapshot cache (if configured) and
// launches the run loop and the connection supervisor.
func (e *Engine) Start() error {
	if !e.started.CompareAndSwap(false, true) {
		return fmt.Errorf("engine: already started")
	}

	if e.snapshotPath != "" {
		records, err := snapshot.Load(e.snapshotPath, e.workspace)
		if err != nil {
			e.logger.Debug("no usable snapshot cache", "path", e.snapshotPath, "error", err)
		} else {
			applied := 0
			for _, record := range records {
				if record.Validate() == nil && e.store.Upsert(record.Object()) {
					applied++
				}
			}
			e.logger.Info("hydrated from snapshot cache", "objects", applied)
		}
	}

	go e.run()
	go e.supervise()
	return nil
}

// Close tears the engine down: explicit cursor hide, supervisor
// shutdown (which leaves the presence channel), snapshot cache write,
// and run-loop stop. Safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		// Hide first, while the presence sink is still bound, so peers
		// drop the cursor without waiting out their TTL.
		e.broadcaster.Hide()
		e.broadcaster.Stop()

		e.cancel()
		if e.started.Load() {
			<-e.supervisorDone

			// The terminated notification rides the loop like every
			// other status change, sequenced after any tasks the
			// supervisor posted before exiting.
			notified := make(chan struct{})
			e.do(func() {
				e.stateMu.Lock()
				e.status = StatusTerminated
				e.stateMu.Unlock()
				for _, listener := range e.statusListeners {
					listener(StatusTerminated)
				}
				close(notified)
			})
			<-notified
			close(e.quit)
			<-e.loopDone
		} else {
			e.stateMu.Lock()
			e.status = StatusTerminated
			e.stateMu.Unlock()
			close(e.quit)
		}

		if e.snapshotPath != "" {
			records := make([]backend.Record, 0, e.store.Len())
			for _, object := range e.store.List() {
				records = append(records, backend.RecordFromObject(e.workspace, object))
			}
			if err := snapshot.Save(e.snapshotPath, e.workspace, e.clk.Now().UnixMilli(), records); err != nil {
				e.logger.Warn("snapshot cache write failed", "path", e.snapshotPath, "error", err)
			}
		}
	})
	return nil
}

// do posts a task to the run loop. Tasks posted after Close are
// dropped.
func (e *Engine) do(task func()) {
	select {
	case e.tasks <- task:
	case <-e.quit:
	}
}

func (e *Engine) run() {
	defer close(e.loopDone)
	for {
		select {
		case task := <-e.tasks:
			task()
		case <-e.quit:
			return
		}
	}
}

// Workspace returns the workspace this engine synchronizes.
func (e *Engine) Workspace() canvas.WorkspaceID { return e.workspace }

// Identity returns the local user.
func (e *Engine) Identity() identity.Identity { return e.id }

// Objects returns a snapshot of all objects in rendering order.
func (e *Engine) Objects() []canvas.Object { return e.store.List() }

// Object returns one object by id.
func (e *Engine) Object(id canvas.ObjectID) (canvas.Object, bool) { return e.store.Get(id) }

// Cursors returns the live remote cursors.
func (e *Engine) Cursors() []presence.Cursor { return e.tracker.Cursors() }

// Roster returns the connected users.
func (e *Engine) Roster() []presence.RosterEntry { return e.tracker.Roster() }

// Status returns the current connection status.
func (e *Engine) Status() Status {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.status
}

// Selected returns the locally selected object, if any. Selection is
// local-only state; it never crosses the wire.
func (e *Engine) Selected() (canvas.ObjectID, bool) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.selected, e.selected != ""
}

// Select marks an object as locally selected. Empty id clears.
func (e *Engine) Select(id canvas.ObjectID) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.selected = id
}

// CreateAt creates a new default-sized object centered at p. The
// object appears locally before the durable write is issued; if the
// write fails, the optimistic object is rolled back. Returns the new
// object's id immediately.
func (e *Engine) CreateAt(p canvas.Point) (canvas.ObjectID, error) {
	if e.id.IsZero() {
		return "", ErrNoIdentity
	}
	select {
	case <-e.quit:
		return "", ErrClosed
	default:
	}

	now := e.clk.Now().UnixMilli()
	object := canvas.Object{
		ID:        canvas.ObjectID(uuid.NewString()),
		X:         p.X - canvas.DefaultSize/2,
		Y:         p.Y - canvas.DefaultSize/2,
		Width:     canvas.DefaultSize,
		Height:    canvas.DefaultSize,
		Color:     canvas.PaletteColor(int(e.colorCounter.Add(1) - 1)),
		CreatedBy: e.id.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}.Clamped()

	e.do(func() {
		e.store.Upsert(object)
		e.notifyObjects()
	})

	go e.confirmCreate(object)
	return object.ID, nil
}

// confirmCreate issues the durable create and posts the outcome back
// to the loop.
func (e *Engine) confirmCreate(object canvas.Object) {
	record := backend.RecordFromObject(e.workspace, object)
	created, err := e.backend.CreateObject(e.runCtx, record)
	if err != nil {
		e.logger.Warn("create failed, rolling back", "object", string(object.ID), "error", err)
		e.do(func() {
			if e.store.Remove(object.ID) {
				e.notifyObjects()
			}
		})
		return
	}
	e.do(func() {
		if created.Validate() != nil {
			return
		}
		if e.store.Upsert(created.Object()) {
			e.notifyObjects()
		}
	})
}

// DragTo moves an object to follow the pointer. Local-only: the
// position is clamped and echoed immediately, and nothing crosses the
// wire until DragEnd.
func (e *Engine) DragTo(id canvas.ObjectID, p canvas.Point) error {
	if e.id.IsZero() {
		return ErrNoIdentity
	}
	e.do(func() {
		object, ok := e.store.Get(id)
		if !ok {
			return
		}
		position := canvas.ClampPosition(p, object.Width, object.Height)
		if position == object.Position() {
			return
		}
		object.X, object.Y = position.X, position.Y
		object.UpdatedAt = e.clk.Now().UnixMilli()
		if e.store.Upsert(object) {
			e.notifyObjects()
		}
	})
	return nil
}

// DragEnd commits the object's current position with one durable
// write. On failure the local state may have diverged from the server,
// so a full resync is scheduled instead of guessing.
func (e *Engine) DragEnd(id canvas.ObjectID) error {
	if e.id.IsZero() {
		return ErrNoIdentity
	}
	e.do(func() {
		object, ok := e.store.Get(id)
		if !ok {
			return
		}
		now := e.clk.Now().UnixMilli()
		object.UpdatedAt = now
		e.store.Upsert(object)

		x, y := object.X, object.Y
		go e.confirmMove(id, backend.ObjectPatch{X: &x, Y: &y, UpdatedAt: now})
	})
	return nil
}

func (e *Engine) confirmMove(id canvas.ObjectID, patch backend.ObjectPatch) {
	updated, err := e.backend.UpdateObject(e.runCtx, e.workspace, id, patch)
	if err != nil {
		e.logger.Warn("move failed, scheduling resync", "object", string(id), "error", err)
		e.requestResync()
		return
	}
	e.do(func() {
		if updated.Validate() != nil {
			return
		}
		if e.store.Upsert(updated.Object()) {
			e.notifyObjects()
		}
	})
}

// MoveCursor reports the local pointer position. Broadcast is
// rate-gated; a no-op without identity or a live channel.
func (e *Engine) MoveCursor(p canvas.Point) {
	if e.id.IsZero() {
		return
	}
	e.broadcaster.Update(p.X, p.Y)
}

// HideCursor broadcasts an immediate hide, e.g. when the pointer
// leaves the canvas.
func (e *Engine) HideCursor() {
	if e.id.IsZero() {
		return
	}
	e.broadcaster.Hide()
}

// requestResync asks the supervisor for a full reload. Coalescing:
// while one request is pending, further requests are no-ops.
func (e *Engine) requestResync() {
	select {
	case e.resyncRequests <- struct{}{}:
	default:
	}
}

// SubscribeObjects registers a listener for object set changes. The
// listener fires immediately with the current snapshot, then after
// every accepted mutation, always on the engine loop. The returned
// function unsubscribes.
func (e *Engine) SubscribeObjects(listener func([]canvas.Object)) (cancel func()) {
	id := new(int)
	e.do(func() {
		*id = e.addListenerID()
		e.objectListeners[*id] = listener
		listener(e.store.List())
	})
	return func() {
		e.do(func() { delete(e.objectListeners, *id) })
	}
}

// SubscribeCursors registers a listener for remote cursor changes.
func (e *Engine) SubscribeCursors(listener func([]presence.Cursor)) (cancel func()) {
	id := new(int)
	e.do(func() {
		*id = e.addListenerID()
		e.cursorListeners[*id] = listener
		listener(e.tracker.Cursors())
	})
	return func() {
		e.do(func() { delete(e.cursorListeners, *id) })
	}
}

// SubscribeRoster registers a listener for roster changes.
func (e *Engine) SubscribeRoster(listener func([]presence.RosterEntry)) (cancel func()) {
	id := new(int)
	e.do(func() {
		*id = e.addListenerID()
		e.rosterListeners[*id] = listener
		listener(e.tracker.Roster())
	})
	return func() {
		e.do(func() { delete(e.rosterListeners, *id) })
	}
}

// SubscribeStatus registers a listener for connection status changes.
func (e *Engine) SubscribeStatus(listener func(Status)) (cancel func()) {
	id := new(int)
	e.do(func() {
		*id = e.addListenerID()
		e.statusListeners[*id] = listener
		listener(e.Status())
	})
	return func() {
		e.do(func() { delete(e.statusListeners, *id) })
	}
}

func (e *Engine) addListenerID() int {
	e.nextListenerID++
	return e.nextListenerID
}

// notifyObjects runs on the loop after every accepted object mutation.
func (e *Engine) notifyObjects() {
	if len(e.objectListeners) == 0 {
		return
	}
	objects := e.store.List()
	for _, listener := range e.objectListeners {
		listener(objects)
	}
}

// notifyCursors runs on the loop after cursor state changes.
func (e *Engine) notifyCursors() {
	if len(e.cursorListeners) == 0 {
		return
	}
	cursors := e.tracker.Cursors()
	for _, listener := range e.cursorListeners {
		listener(cursors)
	}
}

// notifyRoster runs on the loop after roster changes.
func (e *Engine) notifyRoster() {
	if len(e.rosterListeners) == 0 {
		return
	}
	roster := e.tracker.Roster()
	for _, listener := range e.rosterListeners {
		listener(roster)
	}
}

// setStatus records a transition and notifies listeners on the loop.
// Terminated is sticky.
func (e *Engine) setStatus(status Status) {
	e.stateMu.Lock()
	if e.status == StatusTerminated || e.status == status {
		e.stateMu.Unlock()
		return
	}
	e.status = status
	e.stateMu.Unlock()

	e.logger.Info("connection status", "status", status.String())
	e.do(func() {
		for _, listener := range e.statusListeners {
			listener(status)
		}
	})
}
