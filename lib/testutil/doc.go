// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides small helpers shared across the test
// suites: channel receive/send with timeout safety valves, and unique
// identifier generation for tests that create objects or workspaces in
// shared fixtures.
package testutil
