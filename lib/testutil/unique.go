// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer. Use this instead of time.Now()
// when tests need unique identifiers for workspaces, users, or objects
// that must be distinguishable in shared fixtures.
//
//	workspace := testutil.UniqueID("ws")   // "ws-1", "ws-2", ...
//	user := testutil.UniqueID("user")      // "user-3", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
