// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package canvas

import (
	"sort"
	"sync"
)

// Store is the single authoritative in-memory view of a workspace's
// objects. All object mutation passes through it; no other component
// mutates objects directly.
//
// Store is safe for concurrent use: the sync engine serializes writes
// on its event loop, while the rendering layer reads snapshots from
// any goroutine.
type Store struct {
	mu      sync.RWMutex
	objects map[ObjectID]Object
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		objects: make(map[ObjectID]Object),
	}
}

// Upsert inserts or replaces the object with the same ID under the
// last-writer-wins rule: an existing entry is replaced only when the
// incoming UpdatedAt is greater than or equal to the stored one.
// Stale records are discarded silently — returns false with no other
// effect. Replaying an identical record is an accepted no-op replace,
// which makes the change feed idempotent under at-least-once delivery.
//
// The stored value is always clamped, so the Store never holds an
// object violating the workspace bounds or minimum size regardless of
// caller input.
func (s *Store) Upsert(object Object) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.objects[object.ID]
	if ok && object.UpdatedAt < existing.UpdatedAt {
		return false
	}
	s.objects[object.ID] = object.Clamped()
	return true
}

// Remove deletes the entry for id unconditionally. Returns whether an
// entry existed. Used only by explicit rollback and delete paths.
func (s *Store) Remove(id ObjectID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.objects[id]
	delete(s.objects, id)
	return ok
}

// Get returns the object for id.
func (s *Store) Get(id ObjectID) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	object, ok := s.objects[id]
	return object, ok
}

// List returns a snapshot of all objects in insertion-stable order:
// ascending CreatedAt, ties broken by ID. Clients receiving the same
// events in different wire order produce the same rendering order.
func (s *Store) List() []Object {
	s.mu.RLock()
	objects := make([]Object, 0, len(s.objects))
	for _, object := range s.objects {
		objects = append(objects, object)
	}
	s.mu.RUnlock()

	sort.Slice(objects, func(i, j int) bool {
		if objects[i].CreatedAt != objects[j].CreatedAt {
			return objects[i].CreatedAt < objects[j].CreatedAt
		}
		return objects[i].ID < objects[j].ID
	})
	return objects
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
