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
)

// feedWriteTimeout bounds feed writes so one stalled subscriber cannot
// wedge the hub.
const feedWriteTimeout = 5 * time.Second

// feedSendBuffer is the per-subscriber outbound queue. A subscriber
// that stays this far behind is disconnected; it reconnects and
// hydrates, which is cheaper than unbounded queueing.
const feedSendBuffer = 256

// feedHub fans change events out to the websocket subscribers of each
// workspace.
type feedHub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu          sync.Mutex
	subscribers map[string]map[*feedConn]struct{}
}

type feedConn struct {
	conn *websocket.Conn
	send chan backend.ChangeEvent
}

func newFeedHub(logger *slog.Logger) *feedHub {
	return &feedHub{
		upgrader: websocket.Upgrader{
			// The demo server trusts its local callers; origin checks
			// belong to the deployment's reverse proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:      logger,
		subscribers: make(map[string]map[*feedConn]struct{}),
	}
}

// broadcast queues an event for every subscriber of the workspace,
// dropping subscribers whose queue is full.
func (h *feedHub) broadcast(workspace string, event backend.ChangeEvent) {
	h.mu.Lock()
	var overloaded []*feedConn
	for subscriber := range h.subscribers[workspace] {
		select {
		case subscriber.send <- event:
		default:
			overloaded = append(overloaded, subscriber)
		}
	}
	for _, subscriber := range overloaded {
		delete(h.subscribers[workspace], subscriber)
	}
	h.mu.Unlock()

	for _, subscriber := range overloaded {
		h.logger.Warn("disconnecting overloaded feed subscriber", "workspace", workspace)
		close(subscriber.send)
	}
}

// serve upgrades the request and pumps events until the subscriber
// disconnects.
func (h *feedHub) serve(w http.ResponseWriter, r *http.Request, workspace string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("feed upgrade failed", "workspace", workspace, "error", err)
		return
	}

	subscriber := &feedConn{
		conn: conn,
		send: make(chan backend.ChangeEvent, feedSendBuffer),
	}
	h.mu.Lock()
	if h.subscribers[workspace] == nil {
		h.subscribers[workspace] = make(map[*feedConn]struct{})
	}
	h.subscribers[workspace][subscriber] = struct{}{}
	h.mu.Unlock()

	// Reader: the feed is server-to-client only, but reading drives
	// the close handshake and detects the dropped peer.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(workspace, subscriber)
				return
			}
		}
	}()

	for event := range subscriber.send {
		conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
		if err := conn.WriteJSON(event); err != nil {
			h.drop(workspace, subscriber)
			break
		}
	}
	conn.Close()
}

// drop unregisters a subscriber and closes its queue once.
func (h *feedHub) drop(workspace string, subscriber *feedConn) {
	h.mu.Lock()
	_, registered := h.subscribers[workspace][subscriber]
	delete(h.subscribers[workspace], subscriber)
	h.mu.Unlock()
	if registered {
		close(subscriber.send)
	}
}
