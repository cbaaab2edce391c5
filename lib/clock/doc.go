// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Every component of the sync engine with temporal behavior — the cursor
// TTL sweep, the cursor broadcast rate gate, the reconnect backoff —
// accepts a Clock instead of calling time.Now, time.After, time.NewTicker,
// or time.AfterFunc directly. In production, Real() provides standard
// library behavior. In tests, Fake() provides a deterministic clock that
// advances only when Advance is called.
//
// # Wiring Pattern
//
// Add a Clock field to structs that use time:
//
//	type Tracker struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production:
//
//	t := NewTracker(clock.Real(), ...)
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	t := NewTracker(c, ...)
//	// ... start goroutines ...
//	c.WaitForTimers(1)         // wait for the sweep ticker to register
//	c.Advance(5 * time.Second) // fire it deterministically
//
// # FakeClock Synchronization
//
// When a goroutine calls After, NewTicker, or AfterFunc on a FakeClock,
// it registers a pending waiter. Use WaitForTimers to block until a
// specific number of waiters are registered before calling Advance. This
// eliminates the race between timer registration and time advancement
// that plagues tests using time.Sleep for synchronization.
package clock
