// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used on the ephemeral
// presence/cursor channel and in local snapshot files.
//
// Encoding is Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer encoding, no indefinite-length items. The same
// logical message always produces identical bytes, which keeps snapshot
// files byte-comparable and relay fan-out cacheable. Decoding accepts
// standard CBOR and silently ignores unknown fields, so older clients
// interoperate with newer message shapes.
//
// Consumers import only this package, never fxamacker/cbor directly.
package codec
