// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/kennyu/gauntlet-collabcanvas/backend"
	"github.com/kennyu/gauntlet-collabcanvas/presence"
)

// session is one live pair of subscriptions. The presence subscription
// is nil for identity-less (read-only) engines.
type session struct {
	feed backend.ChangeSubscription
	pres backend.PresenceSubscription
}

// supervise owns the connection lifecycle: connect, hydrate, pump
// until the subscription drops, back off, repeat. Runs in its own
// goroutine until Close.
func (e *Engine) supervise() {
	defer close(e.supervisorDone)
	ctx := e.runCtx

	attempt := 0
	for ctx.Err() == nil {
		e.setStatus(StatusConnecting)
		s, err := e.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			e.logger.Warn("connect failed", "attempt", attempt, "error", err)
			if !e.backoffWait(ctx, attempt) {
				return
			}
			continue
		}

		attempt = 0
		e.setStatus(StatusSubscribed)
		err = e.pump(ctx, s)
		e.disconnect(s)
		if ctx.Err() != nil {
			return
		}

		// A live subscription was lost. Local edits keep applying
		// optimistically while we reconnect; the post-connect
		// hydration reconverges everything.
		e.logger.Warn("subscription lost", "error", err)
		e.setStatus(StatusDegraded)
		attempt++
		if !e.backoffWait(ctx, attempt) {
			return
		}
	}
}

// connect opens the change feed and presence channel, then hydrates
// the store with a full load. Any failure tears down whatever was
// opened; every (re)subscribe hydrates, so no change slips through the
// gap between outage and resubscribe.
func (e *Engine) connect(ctx context.Context) (*session, error) {
	feed, err := e.backend.SubscribeChanges(ctx, e.workspace)
	if err != nil {
		return nil, fmt.Errorf("subscribe changes: %w", err)
	}

	var pres backend.PresenceSubscription
	if !e.id.IsZero() {
		pres, err = e.backend.JoinPresence(ctx, e.workspace, backend.Participant{
			UserID:      string(e.id.UserID),
			DisplayName: e.id.DisplayName,
			Color:       e.id.Color,
		})
		if err != nil {
			feed.Close()
			return nil, fmt.Errorf("join presence: %w", err)
		}
	}

	records, err := e.backend.LoadAll(ctx, e.workspace)
	if err != nil {
		if pres != nil {
			pres.Close()
		}
		feed.Close()
		return nil, fmt.Errorf("hydrate: %w", err)
	}

	// Ephemeral state never survives a resubscribe: the roster comes
	// back via the server's snapshot event, cursors via fresh
	// broadcasts.
	e.tracker.Reset()
	e.do(func() {
		e.applyRecords(records, "subscribe")
		e.notifyRoster()
		e.notifyCursors()
	})

	if pres != nil {
		e.broadcaster.SetSink(pres.SendCursor)
	}
	return &session{feed: feed, pres: pres}, nil
}

// disconnect unbinds the broadcaster and closes both subscriptions.
// The presence close sends an explicit hide, so peers drop the cursor
// immediately when the teardown is graceful.
func (e *Engine) disconnect(s *session) {
	e.broadcaster.SetSink(nil)
	if s.pres != nil {
		s.pres.Close()
	}
	s.feed.Close()
}

// pump relays subscription traffic into the engine loop until the
// session terminates, the context is cancelled, or a resync fails.
func (e *Engine) pump(ctx context.Context, s *session) error {
	sweep := e.clk.NewTicker(presence.SweepInterval)
	defer sweep.Stop()

	var presEvents <-chan backend.PresenceEvent
	var presCursors <-chan backend.CursorMessage
	var presDone <-chan struct{}
	if s.pres != nil {
		presEvents = s.pres.Events()
		presCursors = s.pres.Cursors()
		presDone = s.pres.Done()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event := <-s.feed.Events():
			e.do(func() { e.applyChange(event) })

		case <-s.feed.Done():
			if err := s.feed.Err(); err != nil {
				return fmt.Errorf("change feed: %w", err)
			}
			return errors.New("change feed closed")

		case event := <-presEvents:
			e.tracker.ApplyPresence(event)
			e.do(func() {
				e.notifyRoster()
				e.notifyCursors()
			})

		case message := <-presCursors:
			e.tracker.ApplyCursor(message)
			e.do(e.notifyCursors)

		case <-presDone:
			if err := s.pres.Err(); err != nil {
				return fmt.Errorf("presence channel: %w", err)
			}
			return errors.New("presence channel closed")

		case <-sweep.C:
			if e.tracker.Sweep() > 0 {
				e.do(e.notifyCursors)
			}

		case <-e.resyncRequests:
			records, err := e.backend.LoadAll(ctx, e.workspace)
			if err != nil {
				// Treat like a lost subscription: the reconnect path
				// hydrates anyway.
				return fmt.Errorf("resync: %w", err)
			}
			e.do(func() { e.applyRecords(records, "resync") })
		}
	}
}

// backoffWait sleeps out the reconnect delay for the given attempt:
// exponential from InitialBackoff, capped at MaxBackoff. Returns false
// when the context was cancelled instead.
func (e *Engine) backoffWait(ctx context.Context, attempt int) bool {
	delay := e.initialBackoff
	for i := 1; i < attempt && delay < e.maxBackoff; i++ {
		delay *= 2
	}
	if delay > e.maxBackoff {
		delay = e.maxBackoff
	}

	select {
	case <-e.clk.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}
