// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package engine

// Status is the connection supervisor's externally visible state.
type Status int

const (
	// StatusConnecting means no live subscription exists yet; the
	// supervisor is dialing or waiting out a backoff delay.
	StatusConnecting Status = iota

	// StatusSubscribed means the change feed and presence channel are
	// live and the post-connect hydration has completed.
	StatusSubscribed

	// StatusDegraded means a live subscription was lost. Local edits
	// still apply optimistically; the supervisor is about to
	// reconnect.
	StatusDegraded

	// StatusTerminated means Close was called. Terminal.
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusSubscribed:
		return "subscribed"
	case StatusDegraded:
		return "degraded"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
