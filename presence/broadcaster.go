// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kennyu/gauntlet-collabcanvas/backend"
	"github.com/kennyu/gauntlet-collabcanvas/lib/clock"
)

// BroadcastInterval is the minimum spacing between outgoing cursor
// messages. Pointer movement arrives far faster than this; everything
// between two sends collapses into the latest sample.
const BroadcastInterval = 30 * time.Millisecond

// Sink delivers one outgoing cursor message. Usually
// backend.PresenceSubscription.SendCursor.
type Sink func(backend.CursorMessage) error

// Broadcaster rate-gates the local user's cursor broadcasts. The first
// sample after an idle period goes out immediately; while the gate is
// closed, later samples overwrite each other and the newest one is
// flushed when the gate reopens. Delivery is fire-and-forget: sink
// errors are logged, never surfaced.
//
// The sink is rebindable because every reconnect produces a new
// presence subscription.
type Broadcaster struct {
	clk    clock.Clock
	self   backend.Participant
	logger *slog.Logger

	mu      sync.Mutex
	sink    Sink
	pending *backend.CursorMessage
	gate    *clock.Timer // non-nil while the gate is closed
}

// NewBroadcaster creates a broadcaster for the given local user with
// no sink bound. Samples are dropped until SetSink.
func NewBroadcaster(clk clock.Clock, self backend.Participant, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{clk: clk, self: self, logger: logger}
}

// SetSink binds (or unbinds, with nil) the delivery sink. Any sample
// held for a gate that was armed against the old sink flushes to the
// new one when the gate reopens.
func (b *Broadcaster) SetSink(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = sink
}

// Update records a new local cursor position and broadcasts it,
// subject to the rate gate.
func (b *Broadcaster) Update(x, y float64) {
	message := backend.CursorMessage{
		UserID:      b.self.UserID,
		DisplayName: b.self.DisplayName,
		Color:       b.self.Color,
		X:           x,
		Y:           y,
		Visible:     true,
		Timestamp:   b.clk.Now().UnixMilli(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gate != nil {
		b.pending = &message
		return
	}
	b.sendLocked(message)
	b.armGateLocked()
}

// Hide broadcasts an immediate Visible=false, bypassing the gate, so
// peers drop the cursor without waiting out their TTL. Any pending
// sample is discarded.
func (b *Broadcaster) Hide() {
	message := backend.CursorMessage{
		UserID:      b.self.UserID,
		DisplayName: b.self.DisplayName,
		Color:       b.self.Color,
		Visible:     false,
		Timestamp:   b.clk.Now().UnixMilli(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
	b.sendLocked(message)
}

// Stop cancels the gate timer. Call on shutdown.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gate != nil {
		b.gate.Stop()
		b.gate = nil
	}
	b.pending = nil
}

func (b *Broadcaster) sendLocked(message backend.CursorMessage) {
	if b.sink == nil {
		return
	}
	if err := b.sink(message); err != nil {
		b.logger.Warn("cursor broadcast failed", "error", err)
	}
}

func (b *Broadcaster) armGateLocked() {
	b.gate = b.clk.AfterFunc(BroadcastInterval, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.gate = nil
		if b.pending != nil {
			message := *b.pending
			b.pending = nil
			b.sendLocked(message)
			b.armGateLocked()
		}
	})
}
