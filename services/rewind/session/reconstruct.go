// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianRewind/services/rewind/delta"
	"github.com/AleutianAI/AleutianRewind/services/rewind/snapshot"
)

// CurrentSnapshot materializes the session's current file set.
func (m *Manager) CurrentSnapshot(ctx context.Context, sessionID string) (snapshot.FileSet, error) {
	sess, err := m.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Current < 1 {
		return nil, fmt.Errorf("%w: session %s has no versions", snapshot.ErrInvalidVersion, sessionID)
	}
	return m.materialize(ctx, sessionID, sess.Current)
}

// SnapshotAt materializes the file set captured at the given version.
func (m *Manager) SnapshotAt(ctx context.Context, sessionID string, number int) (snapshot.FileSet, error) {
	return m.materialize(ctx, sessionID, number)
}

// materialize reconstructs the file set of one version.
//
// Resolution order: the version's own snapshot when the volatile tier holds
// it; otherwise the nearest cached ancestor within the replay depth with the
// intervening diffs applied forward; otherwise one durable snapshot load.
// A replay failure is corruption and surfaces as ErrDiffApplication; it is
// never masked by falling through to the durable copy.
func (m *Manager) materialize(ctx context.Context, sessionID string, number int) (snapshot.FileSet, error) {
	target, err := m.store.Version(ctx, sessionID, number)
	if err != nil {
		return nil, err
	}

	if snap, ok := m.store.SnapshotIfCached(target.SnapshotID); ok {
		return snap.Files, nil
	}

	files, ok, err := m.replayFromCached(ctx, sessionID, target)
	if err != nil {
		return nil, err
	}
	if ok {
		return files, nil
	}

	snap, err := m.store.Snapshot(ctx, target.SnapshotID)
	if err != nil {
		return nil, err
	}
	return snap.Files, nil
}

// replayFromCached walks back from the target looking for a cached full
// snapshot, then replays the intervening diffs forward. ok reports whether
// a cached base was found; a false return means the caller resolves
// durably. A non-nil error is always corruption.
func (m *Manager) replayFromCached(ctx context.Context, sessionID string, target snapshot.Version) (snapshot.FileSet, bool, error) {
	floor := target.Number - m.maxReplay
	if floor < 1 {
		floor = 1
	}

	// pending collects the versions whose diffs must replay, newest first.
	pending := []snapshot.Version{target}
	var base snapshot.FileSet
	found := false

	for k := target.Number - 1; k >= floor; k-- {
		v, err := m.store.Version(ctx, sessionID, k)
		if err != nil {
			// Version record unreadable; let the durable path produce the
			// definitive error.
			return nil, false, nil
		}
		if snap, hit := m.store.SnapshotIfCached(v.SnapshotID); hit {
			base = snap.Files
			found = true
			break
		}
		pending = append(pending, v)
	}
	if !found {
		return nil, false, nil
	}

	files := base
	for i := len(pending) - 1; i >= 0; i-- {
		rec := pending[i]
		if len(rec.Diff) == 0 {
			// Nothing to replay through; resolve durably.
			return nil, false, nil
		}
		d, err := delta.Unmarshal(rec.Diff)
		if err != nil {
			return nil, false, fmt.Errorf("%w: decode diff for version %d: %v",
				snapshot.ErrDiffApplication, rec.Number, err)
		}
		next, err := delta.Apply(files, d)
		if err != nil {
			return nil, false, fmt.Errorf("replay version %d: %w", rec.Number, err)
		}
		files = next
	}

	m.logger.Debug("reconstructed snapshot by replay",
		slog.String("session_id", sessionID),
		slog.Int("version", target.Number),
		slog.Int("replayed", len(pending)))
	return files, true, nil
}
