// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity resolves the current user's stable identity for the
// sync engine: user id, display name, and a display color derived
// deterministically from the id.
//
// Authentication itself is out of scope — session management hands
// this package an already-authenticated user id and display name. The
// display color is a BLAKE3 hash of the user id mapped into the fixed
// canvas palette, so every client renders the same user in the same
// color without coordination.
package identity
