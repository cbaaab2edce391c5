// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

// Package presence tracks who is in the workspace and where their
// cursors are. It is ephemeral state: nothing here is persisted, and
// all of it is rebuilt from scratch on every (re)subscribe.
//
// Tracker holds the receive side: the roster of connected users and
// the last known cursor per remote user, expiring cursors that go
// silent. Broadcaster holds the send side: it rate-gates outgoing
// cursor samples so a fast pointer produces a bounded message stream,
// always sending the latest sample rather than queueing stale ones.
package presence
