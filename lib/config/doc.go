// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for CollabCanvas
// binaries.
//
// Configuration is loaded from a single YAML file specified by:
//   - CANVAS_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. The file is the
// single source of truth: environment variables never override
// values, so a deployment's behavior is fully determined by one
// auditable file. The only expansion performed is ${HOME}-style path
// variables for portability.
package config
