// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"testing"

	"github.com/kennyu/gauntlet-collabcanvas/canvas"
)

func TestColorForDeterministic(t *testing.T) {
	first := ColorFor("user-alpha")
	second := ColorFor("user-alpha")
	if first != second {
		t.Fatalf("same id produced different colors: %s vs %s", first, second)
	}
}

func TestColorForInPalette(t *testing.T) {
	ids := []canvas.UserID{"a", "b", "user-long-identifier", "", "另一个用户"}
	for _, id := range ids {
		color := ColorFor(id)
		found := false
		for _, entry := range canvas.Palette {
			if entry == color {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("ColorFor(%q) = %q, not a palette entry", id, color)
		}
	}
}

func TestNewDefaultsDisplayName(t *testing.T) {
	id := New("user-7", "")
	if id.DisplayName != "user-7" {
		t.Fatalf("DisplayName = %q, want fallback to user id", id.DisplayName)
	}
	if id.IsZero() {
		t.Fatal("identity with a user id reported as zero")
	}
	if (Identity{}).IsZero() != true {
		t.Fatal("zero identity not reported as zero")
	}
}
