// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kennyu/gauntlet-collabcanvas/backend"
	"github.com/kennyu/gauntlet-collabcanvas/lib/codec"
)

const presenceSendBuffer = 128

// presenceHub relays ephemeral presence and cursor traffic per
// workspace. Nothing here is persisted: the roster is derived from the
// open connections, with per-user refcounting so one user with several
// tabs appears once.
type presenceHub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu         sync.Mutex
	workspaces map[string]*presenceWorkspace
}

type presenceWorkspace struct {
	conns  map[*presenceConn]struct{}
	roster map[string]*presenceUser
}

type presenceUser struct {
	participant backend.Participant
	connections int
}

type presenceConn struct {
	conn *websocket.Conn
	self backend.Participant
	send chan []byte
}

func newPresenceHub(logger *slog.Logger) *presenceHub {
	return &presenceHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:     logger,
		workspaces: make(map[string]*presenceWorkspace),
	}
}

// serve upgrades the request, announces the join, and relays frames
// until the peer disconnects.
func (h *presenceHub) serve(w http.ResponseWriter, r *http.Request, workspace string, self backend.Participant) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("presence upgrade failed", "workspace", workspace, "error", err)
		return
	}

	subscriber := &presenceConn{
		conn: conn,
		self: self,
		send: make(chan []byte, presenceSendBuffer),
	}

	h.mu.Lock()
	ws := h.workspaces[workspace]
	if ws == nil {
		ws = &presenceWorkspace{
			conns:  make(map[*presenceConn]struct{}),
			roster: make(map[string]*presenceUser),
		}
		h.workspaces[workspace] = ws
	}
	user := ws.roster[self.UserID]
	if user == nil {
		user = &presenceUser{participant: self}
		ws.roster[self.UserID] = user
	}
	user.connections++
	firstConnection := user.connections == 1

	roster := make([]backend.Participant, 0, len(ws.roster))
	for _, entry := range ws.roster {
		roster = append(roster, entry.participant)
	}
	ws.conns[subscriber] = struct{}{}
	h.mu.Unlock()

	// The roster snapshot is always the first frame a subscriber
	// receives.
	subscriber.enqueue(h.encodeFrame(backend.Frame{Presence: &backend.PresenceEvent{
		Kind:   backend.PresenceSnapshot,
		Roster: roster,
	}}))
	if firstConnection {
		h.broadcast(workspace, subscriber, h.encodeFrame(backend.Frame{Presence: &backend.PresenceEvent{
			Kind: backend.PresenceJoin,
			User: self,
		}}))
	}

	go h.writeLoop(subscriber)
	h.readLoop(workspace, subscriber)
}

// readLoop relays incoming cursor frames to the workspace's other
// subscribers, then handles the departure when the connection drops.
func (h *presenceHub) readLoop(workspace string, subscriber *presenceConn) {
	for {
		messageType, data, err := subscriber.conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		var frame backend.Frame
		if err := codec.Unmarshal(data, &frame); err != nil {
			h.logger.Warn("dropping malformed presence frame",
				"workspace", workspace, "user", subscriber.self.UserID, "error", err)
			continue
		}
		if frame.Cursor == nil {
			// Clients only originate cursor frames.
			continue
		}
		frame.Cursor.UserID = subscriber.self.UserID
		h.broadcast(workspace, subscriber, h.encodeFrame(backend.Frame{Cursor: frame.Cursor}))
	}

	h.mu.Lock()
	ws := h.workspaces[workspace]
	delete(ws.conns, subscriber)
	var left bool
	if user := ws.roster[subscriber.self.UserID]; user != nil {
		user.connections--
		if user.connections <= 0 {
			delete(ws.roster, subscriber.self.UserID)
			left = true
		}
	}
	h.mu.Unlock()

	close(subscriber.send)
	if left {
		h.broadcast(workspace, subscriber, h.encodeFrame(backend.Frame{Presence: &backend.PresenceEvent{
			Kind: backend.PresenceLeave,
			User: subscriber.self,
		}}))
	}
}

func (h *presenceHub) writeLoop(subscriber *presenceConn) {
	for data := range subscriber.send {
		subscriber.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
		if err := subscriber.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			break
		}
	}
	subscriber.conn.Close()
}

// broadcast sends an encoded frame to every subscriber in the
// workspace except the sender.
func (h *presenceHub) broadcast(workspace string, sender *presenceConn, data []byte) {
	if data == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	ws := h.workspaces[workspace]
	if ws == nil {
		return
	}
	for subscriber := range ws.conns {
		if subscriber == sender {
			continue
		}
		subscriber.enqueue(data)
	}
}

// enqueue queues a frame, dropping it when the subscriber is backed
// up. Ephemeral traffic: every cursor frame fully replaces the last,
// and presence state reconverges on the next subscribe.
func (c *presenceConn) enqueue(data []byte) {
	if data == nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *presenceHub) encodeFrame(frame backend.Frame) []byte {
	data, err := codec.Marshal(frame)
	if err != nil {
		h.logger.Error("presence frame encode failed", "error", err)
		return nil
	}
	return data
}
