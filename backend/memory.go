// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kennyu/gauntlet-collabcanvas/canvas"
)

// errConnectionDropped terminates subscriptions severed by
// DropConnections.
var errConnectionDropped = errors.New("backend: connection dropped")

// Memory is an in-process Backend. It applies the same last-writer-wins
// and clamping rules as the collaboration server, fans change events
// out to every feed subscriber, and relays cursor messages between
// presence subscribers. It exists for tests and for offline runs.
//
// Fault injection: SetFailCreates, SetFailUpdates, and SetFailLoads
// make the corresponding operations return CC_UNAVAILABLE, and
// DropConnections severs every open subscription, simulating a network
// outage without a real network.
type Memory struct {
	logger *slog.Logger

	mu         sync.Mutex
	workspaces map[canvas.WorkspaceID]*memoryWorkspace

	failCreates bool
	failUpdates bool
	failLoads   bool
}

type memoryWorkspace struct {
	records map[canvas.ObjectID]Record
	order   []canvas.ObjectID // creation order, for LoadAll

	feeds     map[*memChangeSub]struct{}
	presences map[*memPresenceSub]struct{}

	// roster counts open presence connections per user so a user with
	// two tabs appears once and leaves only when the last tab closes.
	roster map[string]*rosterEntry
}

type rosterEntry struct {
	participant Participant
	connections int
}

// NewMemory creates an empty in-process backend.
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		logger:     logger,
		workspaces: make(map[canvas.WorkspaceID]*memoryWorkspace),
	}
}

// SetFailCreates toggles failure injection for CreateObject.
func (m *Memory) SetFailCreates(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCreates = fail
}

// SetFailUpdates toggles failure injection for UpdateObject.
func (m *Memory) SetFailUpdates(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUpdates = fail
}

// SetFailLoads toggles failure injection for LoadAll.
func (m *Memory) SetFailLoads(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failLoads = fail
}

// DropConnections severs every open change feed and presence
// subscription across all workspaces. Stored objects survive; the
// roster is cleared because nobody is connected anymore.
func (m *Memory) DropConnections() {
	m.mu.Lock()
	var dropped []interface{ drop(error) }
	for _, ws := range m.workspaces {
		for sub := range ws.feeds {
			dropped = append(dropped, sub)
		}
		for sub := range ws.presences {
			dropped = append(dropped, sub)
		}
		ws.feeds = make(map[*memChangeSub]struct{})
		ws.presences = make(map[*memPresenceSub]struct{})
		ws.roster = make(map[string]*rosterEntry)
	}
	m.mu.Unlock()

	for _, sub := range dropped {
		sub.drop(errConnectionDropped)
	}
}

// workspace returns the named workspace, creating it on first touch.
// Caller holds m.mu.
func (m *Memory) workspace(id canvas.WorkspaceID) *memoryWorkspace {
	ws, ok := m.workspaces[id]
	if !ok {
		ws = &memoryWorkspace{
			records:   make(map[canvas.ObjectID]Record),
			feeds:     make(map[*memChangeSub]struct{}),
			presences: make(map[*memPresenceSub]struct{}),
			roster:    make(map[string]*rosterEntry),
		}
		m.workspaces[id] = ws
	}
	return ws
}

// LoadAll returns the workspace's objects in creation order.
func (m *Memory) LoadAll(ctx context.Context, workspace canvas.WorkspaceID) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLoads {
		return nil, &Error{Code: ErrCodeUnavailable, Message: "loads disabled", StatusCode: 503}
	}

	ws := m.workspace(workspace)
	records := make([]Record, 0, len(ws.order))
	for _, id := range ws.order {
		records = append(records, ws.records[id])
	}
	return records, nil
}

// CreateObject inserts a record under last-writer-wins and notifies
// every feed subscriber, the writer's own included.
func (m *Memory) CreateObject(ctx context.Context, record Record) (Record, error) {
	if err := record.Validate(); err != nil {
		return Record{}, &Error{Code: ErrCodeInvalidParam, Message: err.Error(), StatusCode: 400}
	}

	m.mu.Lock()
	if m.failCreates {
		m.mu.Unlock()
		return Record{}, &Error{Code: ErrCodeUnavailable, Message: "creates disabled", StatusCode: 503}
	}

	ws := m.workspace(canvas.WorkspaceID(record.WorkspaceID))
	canonical := RecordFromObject(canvas.WorkspaceID(record.WorkspaceID), record.Object().Clamped())

	id := canvas.ObjectID(canonical.ID)
	existing, exists := ws.records[id]
	if exists && canonical.UpdatedAt < existing.UpdatedAt {
		// Stale replay of an id we already know; keep the newer state.
		canonical = existing
	} else {
		if !exists {
			ws.order = append(ws.order, id)
		}
		ws.records[id] = canonical
	}
	subs := feedSnapshot(ws)
	m.mu.Unlock()

	broadcastChange(subs, ChangeEvent{Kind: ChangeCreate, Record: canonical}, m.logger)
	return canonical, nil
}

// UpdateObject applies a patch under last-writer-wins. A stale patch is
// silently discarded and the stored record returned unchanged.
func (m *Memory) UpdateObject(ctx context.Context, workspace canvas.WorkspaceID, id canvas.ObjectID, patch ObjectPatch) (Record, error) {
	if patch.UpdatedAt <= 0 {
		return Record{}, &Error{Code: ErrCodeMissingParam, Message: "patch missing updatedAt", StatusCode: 400}
	}

	m.mu.Lock()
	if m.failUpdates {
		m.mu.Unlock()
		return Record{}, &Error{Code: ErrCodeUnavailable, Message: "updates disabled", StatusCode: 503}
	}

	ws := m.workspace(workspace)
	record, ok := ws.records[id]
	if !ok {
		m.mu.Unlock()
		return Record{}, &Error{Code: ErrCodeNotFound, Message: "object not found: " + string(id), StatusCode: 404}
	}
	if patch.UpdatedAt < record.UpdatedAt {
		m.mu.Unlock()
		return record, nil
	}

	if patch.X != nil {
		record.X = *patch.X
	}
	if patch.Y != nil {
		record.Y = *patch.Y
	}
	if patch.Width != nil {
		record.Width = *patch.Width
	}
	if patch.Height != nil {
		record.Height = *patch.Height
	}
	record.UpdatedAt = patch.UpdatedAt
	record = RecordFromObject(workspace, record.Object().Clamped())
	ws.records[id] = record
	subs := feedSnapshot(ws)
	m.mu.Unlock()

	broadcastChange(subs, ChangeEvent{Kind: ChangeUpdate, Record: record}, m.logger)
	return record, nil
}

func feedSnapshot(ws *memoryWorkspace) []*memChangeSub {
	subs := make([]*memChangeSub, 0, len(ws.feeds))
	for sub := range ws.feeds {
		subs = append(subs, sub)
	}
	return subs
}

func broadcastChange(subs []*memChangeSub, event ChangeEvent, logger *slog.Logger) {
	for _, sub := range subs {
		select {
		case sub.events <- event:
		case <-sub.closed:
		default:
			logger.Warn("dropping change event for slow subscriber",
				"object", event.Record.ID)
		}
	}
}

// SubscribeChanges opens an in-process change feed.
func (m *Memory) SubscribeChanges(ctx context.Context, workspace canvas.WorkspaceID) (ChangeSubscription, error) {
	sub := &memChangeSub{
		events: make(chan ChangeEvent, changeEventBuffer),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}

	m.mu.Lock()
	ws := m.workspace(workspace)
	ws.feeds[sub] = struct{}{}
	m.mu.Unlock()

	sub.unregister = func() {
		m.mu.Lock()
		delete(ws.feeds, sub)
		m.mu.Unlock()
	}
	return sub, nil
}

type memChangeSub struct {
	events     chan ChangeEvent
	done       chan struct{}
	closed     chan struct{}
	closeOnce  sync.Once
	unregister func()

	errMu sync.Mutex
	err   error
}

func (s *memChangeSub) Events() <-chan ChangeEvent { return s.events }
func (s *memChangeSub) Done() <-chan struct{}      { return s.done }

func (s *memChangeSub) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *memChangeSub) Close() error {
	s.terminate(nil)
	return nil
}

func (s *memChangeSub) drop(err error) { s.terminate(err) }

func (s *memChangeSub) terminate(err error) {
	s.closeOnce.Do(func() {
		if s.unregister != nil {
			s.unregister()
		}
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		close(s.closed)
		close(s.done)
	})
}

// JoinPresence registers self on the workspace roster and opens an
// in-process presence stream. The first event delivered is always a
// roster snapshot.
func (m *Memory) JoinPresence(ctx context.Context, workspace canvas.WorkspaceID, self Participant) (PresenceSubscription, error) {
	if self.UserID == "" {
		return nil, &Error{Code: ErrCodeMissingParam, Message: "participant missing userId", StatusCode: 400}
	}

	sub := &memPresenceSub{
		self:    self,
		events:  make(chan PresenceEvent, presenceEventBuffer),
		cursors: make(chan CursorMessage, cursorBuffer),
		done:    make(chan struct{}),
		closed:  make(chan struct{}),
	}

	m.mu.Lock()
	ws := m.workspace(workspace)

	entry, known := ws.roster[self.UserID]
	if !known {
		entry = &rosterEntry{participant: self}
		ws.roster[self.UserID] = entry
	}
	entry.connections++
	firstConnection := entry.connections == 1

	roster := make([]Participant, 0, len(ws.roster))
	for _, e := range ws.roster {
		roster = append(roster, e.participant)
	}

	ws.presences[sub] = struct{}{}
	peers := presenceSnapshot(ws, sub)
	m.mu.Unlock()

	sub.events <- PresenceEvent{Kind: PresenceSnapshot, Roster: roster}
	if firstConnection {
		broadcastPresence(peers, PresenceEvent{Kind: PresenceJoin, User: self})
	}

	sub.close = func() {
		m.mu.Lock()
		delete(ws.presences, sub)
		var left bool
		if entry := ws.roster[self.UserID]; entry != nil {
			entry.connections--
			if entry.connections <= 0 {
				delete(ws.roster, self.UserID)
				left = true
			}
		}
		remaining := presenceSnapshot(ws, sub)
		m.mu.Unlock()

		if left {
			broadcastPresence(remaining, PresenceEvent{Kind: PresenceLeave, User: self})
		}
	}
	sub.relay = func(message CursorMessage) {
		m.mu.Lock()
		peers := presenceSnapshot(ws, sub)
		m.mu.Unlock()
		for _, peer := range peers {
			peer.deliverCursor(message)
		}
	}
	return sub, nil
}

// presenceSnapshot returns every presence subscriber except the given
// one. Caller holds m.mu.
func presenceSnapshot(ws *memoryWorkspace, except *memPresenceSub) []*memPresenceSub {
	peers := make([]*memPresenceSub, 0, len(ws.presences))
	for sub := range ws.presences {
		if sub != except {
			peers = append(peers, sub)
		}
	}
	return peers
}

func broadcastPresence(subs []*memPresenceSub, event PresenceEvent) {
	for _, sub := range subs {
		select {
		case sub.events <- event:
		case <-sub.closed:
		default:
		}
	}
}

type memPresenceSub struct {
	self    Participant
	events  chan PresenceEvent
	cursors chan CursorMessage

	close func()
	relay func(CursorMessage)

	done      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

func (s *memPresenceSub) Events() <-chan PresenceEvent  { return s.events }
func (s *memPresenceSub) Cursors() <-chan CursorMessage { return s.cursors }
func (s *memPresenceSub) Done() <-chan struct{}         { return s.done }

func (s *memPresenceSub) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *memPresenceSub) SendCursor(message CursorMessage) error {
	select {
	case <-s.closed:
		return errConnectionDropped
	default:
	}
	s.relay(message)
	return nil
}

func (s *memPresenceSub) deliverCursor(message CursorMessage) {
	// Lossy on backpressure: evict the oldest pending message.
	select {
	case s.cursors <- message:
	case <-s.closed:
	default:
		select {
		case <-s.cursors:
		default:
		}
		select {
		case s.cursors <- message:
		default:
		}
	}
}

func (s *memPresenceSub) Close() error {
	s.terminate(nil, true)
	return nil
}

func (s *memPresenceSub) drop(err error) { s.terminate(err, false) }

func (s *memPresenceSub) terminate(err error, unregister bool) {
	s.closeOnce.Do(func() {
		if unregister && s.close != nil {
			s.close()
		}
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		close(s.closed)
		close(s.done)
	})
}
