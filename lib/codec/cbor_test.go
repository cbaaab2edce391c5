// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type sample struct {
	UserID  string  `cbor:"userId"`
	X       float64 `cbor:"x"`
	Y       float64 `cbor:"y"`
	Visible bool    `cbor:"visible"`
}

func TestMarshalDeterministic(t *testing.T) {
	value := sample{UserID: "user-7", X: 120.5, Y: 44, Visible: true}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("same value produced different encodings")
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	// Encode a superset shape, decode into the known one.
	extended := map[string]any{
		"userId":  "user-7",
		"x":       1.0,
		"y":       2.0,
		"visible": true,
		"badge":   "future-field",
	}
	data, err := Marshal(extended)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sample
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.UserID != "user-7" || decoded.X != 1.0 || !decoded.Visible {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestStreamRoundTrip(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for i := 0; i < 3; i++ {
		if err := encoder.Encode(sample{UserID: "u", X: float64(i)}); err != nil {
			t.Fatalf("Encode %d: %v", i, err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i := 0; i < 3; i++ {
		var got sample
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		if got.X != float64(i) {
			t.Fatalf("frame %d: X = %v", i, got.X)
		}
	}
}
