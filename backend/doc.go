// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend defines the boundary between the sync engine and the
// durable collaboration backend, and provides two implementations of
// it: an HTTP/websocket client for a real server and an in-process
// [Memory] backend for tests and offline runs.
//
// The boundary has three parts with distinct delivery semantics:
//
//   - The object API (LoadAll, CreateObject, UpdateObject): durable
//     request/response writes against the source of truth.
//   - The change feed: a stream of create/update notifications scoped
//     to one workspace, delivered at least once with no ordering
//     guarantee across distinct writers. Consumers must merge by
//     timestamp, not arrival order.
//   - The presence channel: ephemeral join/leave/roster events and
//     fire-and-forget cursor messages. Nothing on this channel is
//     persisted; every message is a complete replacement of the
//     sender's last-known state.
//
// Change events travel as JSON (field-exact with the REST records);
// the high-rate ephemeral channel uses CBOR via lib/codec.
//
// All API errors are returned as [*Error] with a stable error code
// (CC_NOT_FOUND, CC_WRONG_WORKSPACE, …) and HTTP status code. [IsError]
// tests for a specific code.
package backend
