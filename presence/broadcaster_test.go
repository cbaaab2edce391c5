// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/kennyu/gauntlet-collabcanvas/backend"
	"github.com/kennyu/gauntlet-collabcanvas/lib/clock"
)

var broadcasterSelf = backend.Participant{UserID: "me", DisplayName: "Me", Color: "#EF4444"}

// recordingSink collects broadcast messages for assertions.
type recordingSink struct {
	mu       sync.Mutex
	messages []backend.CursorMessage
}

func (s *recordingSink) send(message backend.CursorMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return nil
}

func (s *recordingSink) all() []backend.CursorMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.CursorMessage(nil), s.messages...)
}

func TestBroadcasterFirstSampleImmediate(t *testing.T) {
	clk := clock.Fake(trackerEpoch)
	sink := &recordingSink{}
	b := NewBroadcaster(clk, broadcasterSelf, nil)
	b.SetSink(sink.send)

	b.Update(10, 20)

	messages := sink.all()
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
	got := messages[0]
	if got.UserID != "me" || got.X != 10 || got.Y != 20 || !got.Visible {
		t.Errorf("message = %+v", got)
	}
}

func TestBroadcasterCollapsesBurstToLatest(t *testing.T) {
	clk := clock.Fake(trackerEpoch)
	sink := &recordingSink{}
	b := NewBroadcaster(clk, broadcasterSelf, nil)
	b.SetSink(sink.send)

	// A burst of samples inside one gate window.
	b.Update(1, 1)
	b.Update(2, 2)
	b.Update(3, 3)
	b.Update(4, 4)

	if got := len(sink.all()); got != 1 {
		t.Fatalf("got %d messages during closed gate, want 1", got)
	}

	clk.Advance(BroadcastInterval)

	messages := sink.all()
	if len(messages) != 2 {
		t.Fatalf("got %d messages after gate reopened, want 2", len(messages))
	}
	if last := messages[1]; last.X != 4 || last.Y != 4 {
		t.Errorf("flushed message = (%v, %v), want the latest sample (4, 4)", last.X, last.Y)
	}
}

func TestBroadcasterIdleGateReopens(t *testing.T) {
	clk := clock.Fake(trackerEpoch)
	sink := &recordingSink{}
	b := NewBroadcaster(clk, broadcasterSelf, nil)
	b.SetSink(sink.send)

	b.Update(1, 1)
	clk.Advance(BroadcastInterval)
	// Nothing pending, so the gate went idle; the next sample is
	// immediate again.
	b.Update(2, 2)

	messages := sink.all()
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[1].X != 2 {
		t.Errorf("second message = %+v", messages[1])
	}
}

func TestBroadcasterSustainedDragPacing(t *testing.T) {
	clk := clock.Fake(trackerEpoch)
	sink := &recordingSink{}
	b := NewBroadcaster(clk, broadcasterSelf, nil)
	b.SetSink(sink.send)

	// 300 ms of continuous movement, samples every 5 ms.
	for i := 0; i < 60; i++ {
		b.Update(float64(i), float64(i))
		clk.Advance(5 * time.Millisecond)
	}

	// At one message per 30 ms window, 300 ms yields about ten sends.
	got := len(sink.all())
	if got < 8 || got > 12 {
		t.Errorf("got %d messages over 300ms, want ~10", got)
	}
}

func TestBroadcasterHideBypassesGate(t *testing.T) {
	clk := clock.Fake(trackerEpoch)
	sink := &recordingSink{}
	b := NewBroadcaster(clk, broadcasterSelf, nil)
	b.SetSink(sink.send)

	b.Update(1, 1)
	b.Update(2, 2) // pending behind the gate
	b.Hide()

	messages := sink.all()
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2 (first sample + hide)", len(messages))
	}
	if messages[1].Visible {
		t.Error("hide message has Visible = true")
	}

	// The pending sample was discarded by Hide.
	clk.Advance(BroadcastInterval)
	if got := len(sink.all()); got != 2 {
		t.Errorf("got %d messages after gate reopened, want still 2", got)
	}
}

func TestBroadcasterNoSinkDropsSamples(t *testing.T) {
	clk := clock.Fake(trackerEpoch)
	b := NewBroadcaster(clk, broadcasterSelf, nil)

	// Must not panic with no sink bound.
	b.Update(1, 1)
	clk.Advance(BroadcastInterval)

	sink := &recordingSink{}
	b.SetSink(sink.send)
	b.Update(2, 2)
	if got := len(sink.all()); got != 1 {
		t.Fatalf("got %d messages after binding sink, want 1", got)
	}
}
