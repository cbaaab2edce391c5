// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements the collaboration server side of the
// backend contract: the REST object API, the websocket change feed,
// and the websocket presence/cursor channel. It exists for local and
// demo deployments and for end-to-end tests of the client; it applies
// the same last-writer-wins and clamping rules as the clients, so the
// durable state can never violate the workspace invariants.
package server
