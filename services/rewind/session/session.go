// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session owns the linear version history of debugging sessions:
// appending new versions, reverting to earlier ones, and materializing any
// version's file set.
//
// # Concurrency
//
// Writers to the same session serialize on a per-session lock, so two
// concurrent ingests never observe the same base version and version
// numbers stay contiguous. Operations on different sessions proceed in
// parallel. Reads take no lock; the store's transactions give each read a
// consistent view.
//
// # Reconstruction
//
// Materializing a version prefers the volatile tier: the target snapshot
// when cached, otherwise the nearest cached ancestor with the intervening
// diffs replayed forward (bounded by a replay depth), and finally one
// durable snapshot load. A diff that fails to replay signals corruption and
// is reported, never masked by falling through to a stale copy.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianRewind/pkg/validation"
	"github.com/AleutianAI/AleutianRewind/services/rewind/delta"
	"github.com/AleutianAI/AleutianRewind/services/rewind/meta"
	"github.com/AleutianAI/AleutianRewind/services/rewind/snapshot"
	"github.com/AleutianAI/AleutianRewind/services/rewind/store"
)

// DefaultMaxReplayDepth bounds how many versions reconstruction walks back
// looking for a cached full snapshot before it settles for one durable
// load.
const DefaultMaxReplayDepth = 32

// Extractor derives per-file metadata for snapshot records. Implemented by
// meta.Extractor.
type Extractor interface {
	ExtractSet(ctx context.Context, files snapshot.FileSet) map[string]snapshot.Metadata
}

// Manager coordinates session lifecycle and version history over the store.
//
// Thread Safety: safe for concurrent use.
type Manager struct {
	store     store.Store
	extractor Extractor
	logger    *slog.Logger
	locks     *lockTable
	maxReplay int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger. Nil leaves logging disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMaxReplayDepth bounds the walk for a cached reconstruction base.
// Values below 1 disable replay, so every uncached read resolves durably.
func WithMaxReplayDepth(n int) Option {
	return func(m *Manager) { m.maxReplay = n }
}

// NewManager creates a session manager over st. A nil extractor falls back
// to the default metadata extractor.
func NewManager(st store.Store, extractor Extractor, opts ...Option) (*Manager, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: store is required", snapshot.ErrInvalidInput)
	}
	if extractor == nil {
		extractor = meta.New()
	}
	m := &Manager{
		store:     st,
		extractor: extractor,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		locks:     newLockTable(),
		maxReplay: DefaultMaxReplayDepth,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ===== Write path =====

// Create opens a new session whose first version captures files.
//
// Description:
//
//	The session record and version 1 are written in two steps; if the
//	version write fails, the session record is removed again so no session
//	exists without history.
//
// Inputs:
//
//	ctx - Cancellation and deadline control.
//	files - Initial file set; must be non-empty, with relative
//	        slash-separated paths.
//	description - Label for version 1. Empty defaults to "Initial snapshot".
//
// Outputs:
//
//	snapshot.Session - The created session with Current == 1.
//	snapshot.Version - Version 1. Its Diff is nil.
//	error - snapshot.ErrInvalidInput or a store error kind.
func (m *Manager) Create(ctx context.Context, files snapshot.FileSet, description string) (snapshot.Session, snapshot.Version, error) {
	if len(files) == 0 {
		return snapshot.Session{}, snapshot.Version{}, fmt.Errorf("%w: initial file set is empty", snapshot.ErrInvalidInput)
	}
	if err := validation.ValidatePaths(files.Paths()); err != nil {
		return snapshot.Session{}, snapshot.Version{}, fmt.Errorf("%w: %v", snapshot.ErrInvalidInput, err)
	}

	sess := snapshot.Session{
		ID:        snapshot.NewID(),
		CreatedAt: time.Now().UnixMilli(),
	}

	lock := m.locks.acquire(sess.ID)
	defer m.locks.release(sess.ID, lock)

	if err := m.store.SaveSession(ctx, sess); err != nil {
		return snapshot.Session{}, snapshot.Version{}, err
	}

	v, err := m.append(ctx, sess, snapshot.Snapshot{}, files, description, 0)
	if err != nil {
		// A session without version 1 is unusable; take it back out.
		if _, derr := m.store.DeleteSession(ctx, sess.ID); derr != nil {
			m.logger.Warn("orphaned session left behind",
				slog.String("session_id", sess.ID),
				slog.String("error", derr.Error()))
		}
		return snapshot.Session{}, snapshot.Version{}, err
	}

	sess.Current = v.Number
	m.logger.Info("session created",
		slog.String("session_id", sess.ID),
		slog.Int("files", len(files)))
	return sess, v, nil
}

// Ingest appends a new version capturing files.
//
// Description:
//
//	The base for the diff is the session's current snapshot, resolved while
//	holding the session lock, so concurrent ingests against one session
//	always observe distinct bases. Unchanged files keep their previous
//	metadata records; only paths the diff touches are re-analyzed.
//
// Inputs:
//
//	ctx - Cancellation and deadline control. Once the durable write has
//	      been issued the operation runs to a definite outcome.
//	sessionID - Target session.
//	files - The complete file set for the new version; must be non-empty,
//	        with relative slash-separated paths.
//	description - Label. Empty defaults to "Update with N changed files".
//
// Outputs:
//
//	snapshot.Version - The appended version.
//	error - ErrSessionNotFound, ErrSessionClosed, ErrInvalidInput, or a
//	        store error kind.
func (m *Manager) Ingest(ctx context.Context, sessionID string, files snapshot.FileSet, description string) (snapshot.Version, error) {
	if sessionID == "" {
		return snapshot.Version{}, fmt.Errorf("%w: session id is empty", snapshot.ErrInvalidInput)
	}
	if len(files) == 0 {
		return snapshot.Version{}, fmt.Errorf("%w: file set is empty", snapshot.ErrInvalidInput)
	}
	if err := validation.ValidatePaths(files.Paths()); err != nil {
		return snapshot.Version{}, fmt.Errorf("%w: %v", snapshot.ErrInvalidInput, err)
	}

	lock := m.locks.acquire(sessionID)
	defer m.locks.release(sessionID, lock)

	sess, err := m.store.Session(ctx, sessionID)
	if err != nil {
		return snapshot.Version{}, err
	}
	if sess.Closed {
		return snapshot.Version{}, fmt.Errorf("%w: %s", snapshot.ErrSessionClosed, sessionID)
	}

	prior, err := m.currentRecord(ctx, sess)
	if err != nil {
		return snapshot.Version{}, err
	}
	return m.append(ctx, sess, prior, files, description, 0)
}

// Revert appends a new version whose content equals the target version's
// content. History is never rewritten; the new version records the version
// it restored.
//
// Inputs:
//
//	ctx - Cancellation and deadline control.
//	sessionID - Target session.
//	target - Version number to restore; must lie in [1, current].
//	description - Label. Empty defaults to "Reverted to version N".
//
// Outputs:
//
//	snapshot.Version - The appended version with RevertedFrom set.
//	error - ErrInvalidVersion when target is out of range, otherwise as
//	        Ingest.
func (m *Manager) Revert(ctx context.Context, sessionID string, target int, description string) (snapshot.Version, error) {
	if sessionID == "" {
		return snapshot.Version{}, fmt.Errorf("%w: session id is empty", snapshot.ErrInvalidInput)
	}

	lock := m.locks.acquire(sessionID)
	defer m.locks.release(sessionID, lock)

	sess, err := m.store.Session(ctx, sessionID)
	if err != nil {
		return snapshot.Version{}, err
	}
	if sess.Closed {
		return snapshot.Version{}, fmt.Errorf("%w: %s", snapshot.ErrSessionClosed, sessionID)
	}
	if target < 1 || target > sess.Current {
		return snapshot.Version{}, fmt.Errorf("%w: revert target %d outside [1, %d]",
			snapshot.ErrInvalidVersion, target, sess.Current)
	}

	files, err := m.materialize(ctx, sessionID, target)
	if err != nil {
		return snapshot.Version{}, err
	}
	prior, err := m.currentRecord(ctx, sess)
	if err != nil {
		return snapshot.Version{}, err
	}

	v, err := m.append(ctx, sess, prior, files, description, target)
	if err != nil {
		return snapshot.Version{}, err
	}
	m.logger.Info("session reverted",
		slog.String("session_id", sessionID),
		slog.Int("target", target),
		slog.Int("version", v.Number))
	return v, nil
}

// ApplyPatch appends a new version produced by applying a unified diff to
// the session's current content. The patch is resolved against the current
// version under the session lock, so concurrent writers cannot shift the
// base between parse and append.
//
// Inputs:
//
//	ctx - Cancellation and deadline control.
//	sessionID - Target session.
//	patch - Unified diff text (git-style a/ b/ prefixes accepted).
//	description - Label. Empty defaults to "Update with N changed files".
//
// Outputs:
//
//	snapshot.Version - The appended version.
//	error - ErrDiffApplication when a hunk does not match the current
//	        content, ErrInvalidInput for unparseable patches, otherwise as
//	        Ingest.
func (m *Manager) ApplyPatch(ctx context.Context, sessionID string, patch []byte, description string) (snapshot.Version, error) {
	if sessionID == "" {
		return snapshot.Version{}, fmt.Errorf("%w: session id is empty", snapshot.ErrInvalidInput)
	}
	if len(patch) == 0 {
		return snapshot.Version{}, fmt.Errorf("%w: patch is empty", snapshot.ErrInvalidInput)
	}

	lock := m.locks.acquire(sessionID)
	defer m.locks.release(sessionID, lock)

	sess, err := m.store.Session(ctx, sessionID)
	if err != nil {
		return snapshot.Version{}, err
	}
	if sess.Closed {
		return snapshot.Version{}, fmt.Errorf("%w: %s", snapshot.ErrSessionClosed, sessionID)
	}

	prior, err := m.currentRecord(ctx, sess)
	if err != nil {
		return snapshot.Version{}, err
	}
	files, err := delta.ApplyUnified(prior.Files, patch)
	if err != nil {
		return snapshot.Version{}, err
	}
	if len(files) == 0 {
		return snapshot.Version{}, fmt.Errorf("%w: patch deletes every file", snapshot.ErrInvalidInput)
	}
	// Patch headers name the paths; they are as untrusted as the patch.
	if err := validation.ValidatePaths(files.Paths()); err != nil {
		return snapshot.Version{}, fmt.Errorf("%w: %v", snapshot.ErrInvalidInput, err)
	}
	return m.append(ctx, sess, prior, files, description, 0)
}

// CloseSession marks the session closed. Closed sessions reject new
// versions but stay readable. Closing twice is a no-op.
func (m *Manager) CloseSession(ctx context.Context, sessionID string) error {
	lock := m.locks.acquire(sessionID)
	defer m.locks.release(sessionID, lock)

	sess, err := m.store.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Closed {
		return nil
	}
	sess.Closed = true
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return err
	}
	m.logger.Info("session closed", slog.String("session_id", sessionID))
	return nil
}

// DeleteSession removes the session, its versions, and their snapshots.
// Returns the number of versions removed.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	lock := m.locks.acquire(sessionID)
	defer m.locks.release(sessionID, lock)
	return m.store.DeleteSession(ctx, sessionID)
}

// Prune deletes sessions whose last activity predates the cutoff. Activity
// is the creation time of the session's latest version; a session without
// versions ages by its own creation time. Returns the number of sessions
// removed.
func (m *Manager) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("%w: prune window must be positive", snapshot.ErrInvalidInput)
	}
	sessions, err := m.store.Sessions(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-olderThan).UnixMilli()

	pruned := 0
	for _, sess := range sessions {
		last := sess.CreatedAt
		if sess.Current > 0 {
			v, err := m.store.Version(ctx, sess.ID, sess.Current)
			if err != nil {
				m.logger.Warn("skipping unreadable session during prune",
					slog.String("session_id", sess.ID),
					slog.String("error", err.Error()))
				continue
			}
			last = v.CreatedAt
		}
		if last >= cutoff {
			continue
		}
		if _, err := m.DeleteSession(ctx, sess.ID); err != nil {
			m.logger.Warn("prune delete failed",
				slog.String("session_id", sess.ID),
				slog.String("error", err.Error()))
			continue
		}
		pruned++
	}

	if pruned > 0 {
		m.logger.Info("sessions pruned", slog.Int("count", pruned))
	}
	return pruned, nil
}

// ===== Lookups =====

// Session returns one session record.
func (m *Manager) Session(ctx context.Context, sessionID string) (snapshot.Session, error) {
	return m.store.Session(ctx, sessionID)
}

// Sessions lists all sessions, oldest first.
func (m *Manager) Sessions(ctx context.Context) ([]snapshot.Session, error) {
	return m.store.Sessions(ctx)
}

// Version returns one full version record, including its serialized diff.
func (m *Manager) Version(ctx context.Context, sessionID string, number int) (snapshot.Version, error) {
	return m.store.Version(ctx, sessionID, number)
}

// History lists the session's version summaries in ascending order.
func (m *Manager) History(ctx context.Context, sessionID string) ([]snapshot.VersionSummary, error) {
	versions, err := m.store.Versions(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]snapshot.VersionSummary, 0, len(versions))
	for _, v := range versions {
		out = append(out, v.Summary())
	}
	return out, nil
}

// ===== Internals =====

// append builds and persists the next version for sess. Caller holds the
// session lock. prior is the snapshot backing sess.Current; the zero value
// means this is version 1.
func (m *Manager) append(ctx context.Context, sess snapshot.Session, prior snapshot.Snapshot, files snapshot.FileSet, description string, revertedFrom int) (snapshot.Version, error) {
	number := sess.Current + 1
	captured := files.Clone()

	var (
		diffBytes []byte
		changed   int
		metaMap   map[string]snapshot.Metadata
	)
	if number == 1 {
		changed = len(captured)
		metaMap = m.extractor.ExtractSet(ctx, captured)
	} else {
		d := delta.Compute(prior.Files, captured)
		changed = len(d.Ops)
		data, err := delta.Marshal(d)
		if err != nil {
			return snapshot.Version{}, fmt.Errorf("encode diff for version %d: %w", number, err)
		}
		diffBytes = data
		metaMap = m.mergeMeta(ctx, prior, captured, d)
	}

	if description == "" {
		switch {
		case number == 1:
			description = "Initial snapshot"
		case revertedFrom > 0:
			description = fmt.Sprintf("Reverted to version %d", revertedFrom)
		default:
			description = fmt.Sprintf("Update with %d changed files", changed)
		}
	}

	now := time.Now().UnixMilli()
	snap := snapshot.Snapshot{
		ID:          snapshot.NewID(),
		SessionID:   sess.ID,
		CapturedAt:  now,
		ContentHash: snapshot.HashFileSet(captured),
		Files:       captured,
		Meta:        metaMap,
	}
	v := snapshot.Version{
		ID:           snapshot.NewID(),
		SessionID:    sess.ID,
		SnapshotID:   snap.ID,
		Number:       number,
		Description:  description,
		CreatedAt:    now,
		Diff:         diffBytes,
		ChangedFiles: changed,
		RevertedFrom: revertedFrom,
	}

	if err := m.store.SaveVersion(ctx, snap, v); err != nil {
		return snapshot.Version{}, err
	}
	return v, nil
}

// currentRecord loads the full snapshot record backing sess.Current. The
// write path wants the record's metadata map for reuse, so it resolves via
// the cache probe or one durable load rather than diff replay.
func (m *Manager) currentRecord(ctx context.Context, sess snapshot.Session) (snapshot.Snapshot, error) {
	v, err := m.store.Version(ctx, sess.ID, sess.Current)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	if snap, ok := m.store.SnapshotIfCached(v.SnapshotID); ok {
		return snap, nil
	}
	return m.store.Snapshot(ctx, v.SnapshotID)
}

// mergeMeta reuses the prior snapshot's metadata for unchanged files and
// extracts fresh records only for the paths the diff touches.
func (m *Manager) mergeMeta(ctx context.Context, prior snapshot.Snapshot, files snapshot.FileSet, d *delta.Diff) map[string]snapshot.Metadata {
	changed := make(map[string]bool, len(d.Ops))
	for _, op := range d.Ops {
		changed[op.Path] = true
	}

	out := make(map[string]snapshot.Metadata, len(files))
	fresh := make(snapshot.FileSet)
	for path, content := range files {
		if !changed[path] {
			if md, ok := prior.Meta[path]; ok {
				out[path] = md
				continue
			}
		}
		fresh[path] = content
	}
	for path, md := range m.extractor.ExtractSet(ctx, fresh) {
		out[path] = md
	}
	return out
}
