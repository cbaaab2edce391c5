// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kennyu/gauntlet-collabcanvas/canvas"
	"github.com/kennyu/gauntlet-collabcanvas/lib/codec"
)

// changeEventBuffer bounds the change feed delivery channel. The
// reconciler consumes promptly; the buffer only absorbs bursts from a
// busy workspace.
const changeEventBuffer = 256

// cursorBuffer bounds the remote cursor channel. Cursor messages are
// complete state replacements, so overflow drops the oldest pending
// message rather than blocking the read loop.
const cursorBuffer = 128

// presenceEventBuffer bounds roster events. Join/leave traffic is low.
const presenceEventBuffer = 32

// writeTimeout bounds websocket writes so a stalled peer cannot wedge
// the sender.
const writeTimeout = 5 * time.Second

// SubscribeChanges opens the workspace's change notification stream.
func (c *Client) SubscribeChanges(ctx context.Context, workspace canvas.WorkspaceID) (ChangeSubscription, error) {
	endpoint := c.wsBaseURL + c.workspacePath(workspace) + "/feed"
	conn, response, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if response != nil {
			response.Body.Close()
		}
		return nil, fmt.Errorf("backend: subscribe changes for %s: %w", workspace, err)
	}

	sub := &wsChangeSub{
		conn:   conn,
		events: make(chan ChangeEvent, changeEventBuffer),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
		logger: c.logger,
	}
	go sub.readLoop()
	return sub, nil
}

type wsChangeSub struct {
	conn   *websocket.Conn
	events chan ChangeEvent
	logger *slog.Logger

	done      chan struct{} // closed by readLoop on termination
	closed    chan struct{} // closed by Close to stop delivery
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

func (s *wsChangeSub) Events() <-chan ChangeEvent { return s.events }
func (s *wsChangeSub) Done() <-chan struct{}      { return s.done }

func (s *wsChangeSub) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *wsChangeSub) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		// Best-effort graceful close; the read loop exits on either
		// the close handshake or the dropped connection.
		deadline := time.Now().Add(writeTimeout)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = s.conn.Close()
	})
	return nil
}

func (s *wsChangeSub) readLoop() {
	defer close(s.done)
	for {
		var event ChangeEvent
		if err := s.conn.ReadJSON(&event); err != nil {
			select {
			case <-s.closed:
				// Local close; not a failure.
			default:
				s.errMu.Lock()
				s.err = err
				s.errMu.Unlock()
			}
			return
		}
		select {
		case s.events <- event:
		case <-s.closed:
			return
		}
	}
}

// JoinPresence announces self on the workspace presence channel and
// opens the ephemeral event stream.
func (c *Client) JoinPresence(ctx context.Context, workspace canvas.WorkspaceID, self Participant) (PresenceSubscription, error) {
	if self.UserID == "" {
		return nil, fmt.Errorf("backend: join presence: missing user id")
	}

	query := url.Values{}
	query.Set("user", self.UserID)
	query.Set("name", self.DisplayName)
	query.Set("color", self.Color)
	endpoint := c.wsBaseURL + c.workspacePath(workspace) + "/presence?" + query.Encode()

	conn, response, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if response != nil {
			response.Body.Close()
		}
		return nil, fmt.Errorf("backend: join presence for %s: %w", workspace, err)
	}

	sub := &wsPresenceSub{
		conn:    conn,
		self:    self,
		events:  make(chan PresenceEvent, presenceEventBuffer),
		cursors: make(chan CursorMessage, cursorBuffer),
		done:    make(chan struct{}),
		closed:  make(chan struct{}),
		logger:  c.logger,
	}
	go sub.readLoop()
	return sub, nil
}

type wsPresenceSub struct {
	conn    *websocket.Conn
	self    Participant
	events  chan PresenceEvent
	cursors chan CursorMessage
	logger  *slog.Logger

	writeMu sync.Mutex // serializes websocket writes

	done      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

func (s *wsPresenceSub) Events() <-chan PresenceEvent  { return s.events }
func (s *wsPresenceSub) Cursors() <-chan CursorMessage { return s.cursors }
func (s *wsPresenceSub) Done() <-chan struct{}         { return s.done }

func (s *wsPresenceSub) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// SendCursor broadcasts the local cursor state as a CBOR frame.
func (s *wsPresenceSub) SendCursor(message CursorMessage) error {
	data, err := codec.Marshal(Frame{Cursor: &message})
	if err != nil {
		return fmt.Errorf("backend: encode cursor frame: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("backend: send cursor: %w", err)
	}
	return nil
}

// Close hides the local cursor, then performs the websocket close
// handshake so the server broadcasts a leave instead of waiting for a
// timeout.
func (s *wsPresenceSub) Close() error {
	s.closeOnce.Do(func() {
		_ = s.SendCursor(CursorMessage{
			UserID:      s.self.UserID,
			DisplayName: s.self.DisplayName,
			Color:       s.self.Color,
			Visible:     false,
			Timestamp:   time.Now().UnixMilli(),
		})
		close(s.closed)
		deadline := time.Now().Add(writeTimeout)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = s.conn.Close()
	})
	return nil
}

func (s *wsPresenceSub) readLoop() {
	defer close(s.done)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
			default:
				s.errMu.Lock()
				s.err = err
				s.errMu.Unlock()
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		var frame Frame
		if err := codec.Unmarshal(data, &frame); err != nil {
			s.logger.Warn("dropping malformed presence frame", "error", err)
			continue
		}

		switch {
		case frame.Cursor != nil:
			// Lossy delivery: drop the oldest pending message when
			// the consumer falls behind. Each message fully replaces
			// the sender's prior state.
			select {
			case s.cursors <- *frame.Cursor:
			default:
				select {
				case <-s.cursors:
				default:
				}
				select {
				case s.cursors <- *frame.Cursor:
				default:
				}
			}
		case frame.Presence != nil:
			select {
			case s.events <- *frame.Presence:
			case <-s.closed:
				return
			}
		default:
			s.logger.Warn("dropping empty presence frame")
		}
	}
}
