// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/kennyu/gauntlet-collabcanvas/backend"
)

// applyChange folds one change feed event into the store. Runs on the
// engine loop. Malformed or misrouted events are logged and dropped —
// one bad event must never poison the feed.
func (e *Engine) applyChange(event backend.ChangeEvent) {
	switch event.Kind {
	case backend.ChangeCreate, backend.ChangeUpdate:
		// Create and update reconcile identically: upsert under
		// last-writer-wins.
	default:
		e.logger.Warn("dropping change event of unknown kind", "kind", string(event.Kind))
		return
	}

	record := event.Record
	if record.WorkspaceID != string(e.workspace) {
		e.logger.Warn("dropping change event for foreign workspace",
			"object", record.ID, "eventWorkspace", record.WorkspaceID)
		return
	}
	if err := record.Validate(); err != nil {
		e.logger.Warn("dropping malformed change event", "error", err)
		return
	}

	if e.store.Upsert(record.Object()) {
		e.notifyObjects()
	}
}

// applyRecords folds a full-state load into the store. Runs on the
// engine loop. Hydration is non-destructive: records merge through the
// same last-writer-wins rule as feed events, so replaying a load can
// never roll an object back, and optimistic local state newer than the
// server's survives.
func (e *Engine) applyRecords(records []backend.Record, source string) {
	applied := 0
	for _, record := range records {
		if record.WorkspaceID != string(e.workspace) {
			continue
		}
		if err := record.Validate(); err != nil {
			e.logger.Warn("skipping malformed record in full load", "source", source, "error", err)
			continue
		}
		if e.store.Upsert(record.Object()) {
			applied++
		}
	}
	e.logger.Debug("full state load merged", "source", source,
		"records", len(records), "applied", applied)
	if applied > 0 {
		e.notifyObjects()
	}
}
