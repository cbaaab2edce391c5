// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package canvas

// Workspace geometry. Coordinates are workspace units with the origin
// at the top-left corner.
const (
	// WorkspaceSize is the side length of the square workspace. An
	// object's rectangle must fit entirely inside
	// [0, WorkspaceSize] × [0, WorkspaceSize].
	WorkspaceSize = 3000.0

	// MinSize is the smallest allowed object width or height.
	MinSize = 20.0

	// DefaultSize is the width and height assigned to newly created
	// objects.
	DefaultSize = 100.0
)

// Palette is the fixed set of object and user colors. Creation assigns
// object colors round-robin per client; user display colors are a hash
// of the user id into the same palette.
var Palette = [8]string{
	"#EF4444", // red
	"#F97316", // orange
	"#EAB308", // yellow
	"#22C55E", // green
	"#06B6D4", // cyan
	"#3B82F6", // blue
	"#8B5CF6", // violet
	"#EC4899", // pink
}

// PaletteColor returns the palette entry for index i, wrapping at the
// palette length. Negative indexes map to the first entry.
func PaletteColor(i int) string {
	if i < 0 {
		i = 0
	}
	return Palette[i%len(Palette)]
}

// ObjectID identifies a canvas object. IDs are client-generated at
// creation time and preserved by the backend, so the optimistic and
// confirmed states of an object share one identity.
type ObjectID string

// WorkspaceID identifies a shared workspace (one collaboration
// session's object set and presence scope).
type WorkspaceID string

// UserID identifies a user across sessions and connections.
type UserID string

// Point is a position in workspace coordinates.
type Point struct {
	X float64
	Y float64
}

// Object is a rectangle in the shared workspace. Objects are immutable
// value snapshots keyed by ID: "mutating" an object means upserting a
// new value with the same ID into the Store.
type Object struct {
	ID     ObjectID
	X      float64
	Y      float64
	Width  float64
	Height float64

	// Color is one of the Palette entries.
	Color string

	// CreatedBy is the originating user. Empty when unknown.
	CreatedBy UserID

	// CreatedAt is the creation wall-clock time in Unix milliseconds.
	// Orders Store.List for deterministic rendering order.
	CreatedAt int64

	// UpdatedAt is the wall-clock time of the last accepted mutation
	// in Unix milliseconds. Used only for last-writer-wins conflict
	// comparison, never for display.
	UpdatedAt int64
}

// Position returns the object's top-left corner.
func (o Object) Position() Point { return Point{X: o.X, Y: o.Y} }

// Clamped returns a copy of o with its size raised to at least MinSize
// and its position clipped so the rectangle lies fully inside the
// workspace.
func (o Object) Clamped() Object {
	o.Width, o.Height = ClampSize(o.Width, o.Height)
	p := ClampPosition(Point{X: o.X, Y: o.Y}, o.Width, o.Height)
	o.X, o.Y = p.X, p.Y
	return o
}

// ClampSize raises width and height to at least MinSize and caps them
// at WorkspaceSize.
func ClampSize(width, height float64) (float64, float64) {
	return clampAxis(width), clampAxis(height)
}

func clampAxis(v float64) float64 {
	if v < MinSize {
		return MinSize
	}
	if v > WorkspaceSize {
		return WorkspaceSize
	}
	return v
}

// ClampPosition clips p so that a rectangle of the given size placed at
// p remains fully within [0, WorkspaceSize] on both axes. Pure
// function; every position mutation path applies it before storing.
func ClampPosition(p Point, width, height float64) Point {
	return Point{
		X: clampCoord(p.X, width),
		Y: clampCoord(p.Y, height),
	}
}

func clampCoord(v, extent float64) float64 {
	max := WorkspaceSize - extent
	if max < 0 {
		max = 0
	}
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
