// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rewind assembles the snapshot and versioning store behind one
// façade. It wires the durable tier, the volatile cache, the metadata
// extractor, and the session manager together, and exposes the operations
// the debugging orchestration layer consumes: session creation, ingestion,
// revert, snapshot materialization, history, patch application, and
// rendered diffs.
//
// Usage:
//
//	st, err := rewind.Open(ctx, rewind.DefaultConfig("~/.rewind/store"))
//	if err != nil {
//		return err
//	}
//	defer st.Close()
//
//	v, err := st.Submit(ctx, "", files, "initial import")  // creates a session
//	_, err = st.Submit(ctx, v.SessionID, updated, "fix off-by-one")
//
// Every operation returns errors wrapping the sentinel kinds in the
// snapshot package, with operation context attached via snapshot.OpError.
package rewind

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianRewind/services/rewind/cache"
	"github.com/AleutianAI/AleutianRewind/services/rewind/delta"
	"github.com/AleutianAI/AleutianRewind/services/rewind/meta"
	"github.com/AleutianAI/AleutianRewind/services/rewind/session"
	"github.com/AleutianAI/AleutianRewind/services/rewind/snapshot"
	"github.com/AleutianAI/AleutianRewind/services/rewind/storage/badger"
	"github.com/AleutianAI/AleutianRewind/services/rewind/store"
)

// ===== Configuration =====

// Config describes a Coordinator. Start from DefaultConfig and adjust;
// the zero value disables durability niceties (sync writes, background GC)
// and is only suitable for throwaway stores.
type Config struct {
	// Path is the durable store directory. Required unless InMemory.
	Path string

	// InMemory keeps the durable tier in memory. Data is lost on Close;
	// intended for tests and dry runs.
	InMemory bool

	// SyncWrites fsyncs every durable commit, so an acknowledged ingestion
	// survives a crash. Default (DefaultConfig): true.
	SyncWrites bool

	// CacheMaxEntries bounds the volatile tier's entry count.
	// 0 uses the cache default (4096).
	CacheMaxEntries int

	// CacheMaxObjectBytes is the per-object admission threshold for the
	// volatile tier. 0 uses the cache default (512 KiB).
	CacheMaxObjectBytes int

	// CacheMaxTotalBytes bounds the volatile tier's summed payload size.
	// 0 removes the bound.
	CacheMaxTotalBytes int64

	// CacheTTL is the volatile tier's default entry lifetime.
	// 0 uses the cache default (1h).
	CacheTTL time.Duration

	// MaxReplayDepth bounds how many versions snapshot reconstruction
	// walks back looking for a cached base before reading durably.
	// 0 uses the session default (32); negative disables replay.
	MaxReplayDepth int

	// MaxAnalyzedFileBytes is the structural-analysis size limit for the
	// metadata extractor. Larger files keep size/language metadata and are
	// flagged incomplete. 0 uses the extractor default (10 MB).
	MaxAnalyzedFileBytes int64

	// GCInterval is the period of the durable tier's background value-log
	// GC. 0 disables the runner. Default (DefaultConfig): 5m.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum discardable fraction before a GC cycle
	// rewrites a value-log file. Default (DefaultConfig): 0.5.
	GCDiscardRatio float64

	// Logger receives structured logs from every layer. Nil disables
	// logging.
	Logger *slog.Logger
}

// DefaultConfig returns a production configuration for a store rooted at
// path: synchronous writes, bounded cache, background GC.
func DefaultConfig(path string) Config {
	return Config{
		Path:                 path,
		SyncWrites:           true,
		CacheMaxEntries:      cache.DefaultMaxEntries,
		CacheMaxObjectBytes:  cache.DefaultMaxObjectBytes,
		CacheMaxTotalBytes:   cache.DefaultMaxTotalBytes,
		CacheTTL:             cache.DefaultTTL,
		MaxReplayDepth:       session.DefaultMaxReplayDepth,
		MaxAnalyzedFileBytes: meta.DefaultMaxFileSize,
		GCInterval:           5 * time.Minute,
		GCDiscardRatio:       0.5,
	}
}

// ===== Coordinator =====

// Coordinator is the façade over the versioning store.
//
// Thread Safety: safe for concurrent use. Writes to the same session are
// serialized by the session manager; reads never block writes.
type Coordinator struct {
	config   Config
	store    *store.Tiered
	durable  *store.Durable
	sessions *session.Manager
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open builds the full store stack from cfg and verifies it is readable.
//
// Description:
//
//	Opens the BadgerDB-backed durable tier, fronts it with the volatile
//	blob cache, and constructs the session manager over the tiered store.
//	A failed open leaves nothing running; a successful open must be paired
//	with Close.
//
// Inputs:
//
//	ctx - Bounds the readiness probe.
//	cfg - Store configuration. Path is required unless InMemory.
//
// Outputs:
//
//	*Coordinator - The ready store façade.
//	error - snapshot.ErrInvalidInput for a bad configuration, or
//	        snapshot.ErrStorageUnavailable when the store cannot open.
func Open(ctx context.Context, cfg Config) (*Coordinator, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("%w: store path is required", snapshot.ErrInvalidInput)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var bcfg badger.Config
	if cfg.InMemory {
		bcfg = badger.InMemoryConfig()
	} else {
		bcfg = badger.DefaultConfig()
		bcfg.Path = cfg.Path
		bcfg.SyncWrites = cfg.SyncWrites
		bcfg.GCInterval = cfg.GCInterval
		bcfg.GCDiscardRatio = cfg.GCDiscardRatio
		if bcfg.GCInterval > 0 && bcfg.GCDiscardRatio <= 0 {
			bcfg.GCDiscardRatio = badger.DefaultConfig().GCDiscardRatio
		}
	}
	bcfg.Logger = logger

	durable, err := store.OpenDurable(bcfg, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: open store at %q: %v", snapshot.ErrStorageUnavailable, cfg.Path, err)
	}

	blobs := cache.New(
		cache.WithMaxEntries(cfg.CacheMaxEntries),
		cache.WithDefaultTTL(cfg.CacheTTL),
		cache.WithMaxObjectBytes(cfg.CacheMaxObjectBytes),
		cache.WithMaxTotalBytes(cfg.CacheMaxTotalBytes),
	)
	tiered := store.NewTiered(durable, blobs, logger)

	opts := []session.Option{session.WithLogger(logger)}
	if cfg.MaxReplayDepth != 0 {
		opts = append(opts, session.WithMaxReplayDepth(cfg.MaxReplayDepth))
	}
	extractor := meta.New(meta.WithMaxFileSize(cfg.MaxAnalyzedFileBytes))
	sessions, err := session.NewManager(tiered, extractor, opts...)
	if err != nil {
		_ = tiered.Close()
		return nil, err
	}

	// Readiness probe: a store that opened but cannot serve reads should
	// fail here, not on the first operation.
	if _, err := tiered.Stats(ctx); err != nil {
		_ = tiered.Close()
		return nil, err
	}

	logger.Info("versioning store ready",
		slog.String("path", cfg.Path),
		slog.Bool("in_memory", cfg.InMemory),
		slog.Bool("sync_writes", bcfg.SyncWrites))

	return &Coordinator{
		config:   cfg,
		store:    tiered,
		durable:  durable,
		sessions: sessions,
		logger:   logger,
	}, nil
}

// Close releases the cache and the durable tier. Safe to call more than
// once; later calls return the first result.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.store.Close()
		c.logger.Info("versioning store closed")
	})
	return c.closeErr
}

// ===== Ingestion =====

// Submit is the single entry point for ingestion requests: an empty
// sessionID creates a new session whose first version captures files,
// anything else appends a version to the named session. The returned
// version carries the session identifier either way.
func (c *Coordinator) Submit(ctx context.Context, sessionID string, files snapshot.FileSet, description string) (*snapshot.Version, error) {
	ctx, span := startOpSpan(ctx, "Submit", sessionID)
	defer span.End()
	start := time.Now()

	var v snapshot.Version
	var err error
	created := false
	if sessionID == "" {
		var sess snapshot.Session
		sess, v, err = c.sessions.Create(ctx, files, description)
		sessionID = sess.ID
		created = true
	} else {
		v, err = c.sessions.Ingest(ctx, sessionID, files, description)
	}
	recordOpMetrics(ctx, "submit", start, err)
	if err != nil {
		return nil, spanError(span, "submit", sessionID, 0, err)
	}

	span.SetAttributes(
		attribute.String("rewind.session_id", sessionID),
		attribute.Bool("rewind.created_session", created),
		attribute.Int("rewind.version", v.Number),
	)
	recordIngestBytes(ctx, files.TotalBytes())
	return &v, nil
}

// CreateSession opens a new session whose first version captures files.
// The returned session's Current is 1.
func (c *Coordinator) CreateSession(ctx context.Context, files snapshot.FileSet, description string) (*snapshot.Session, error) {
	ctx, span := startOpSpan(ctx, "CreateSession", "")
	defer span.End()
	start := time.Now()

	sess, _, err := c.sessions.Create(ctx, files, description)
	recordOpMetrics(ctx, "create_session", start, err)
	if err != nil {
		return nil, spanError(span, "create_session", "", 0, err)
	}

	span.SetAttributes(attribute.String("rewind.session_id", sess.ID))
	recordIngestBytes(ctx, files.TotalBytes())
	return &sess, nil
}

// Ingest appends a new version capturing files to an existing session.
func (c *Coordinator) Ingest(ctx context.Context, sessionID string, files snapshot.FileSet, description string) (*snapshot.Version, error) {
	ctx, span := startOpSpan(ctx, "Ingest", sessionID)
	defer span.End()
	start := time.Now()

	v, err := c.sessions.Ingest(ctx, sessionID, files, description)
	recordOpMetrics(ctx, "ingest", start, err)
	if err != nil {
		return nil, spanError(span, "ingest", sessionID, 0, err)
	}

	span.SetAttributes(
		attribute.Int("rewind.version", v.Number),
		attribute.Int("rewind.changed_files", v.ChangedFiles),
	)
	recordIngestBytes(ctx, files.TotalBytes())
	return &v, nil
}

// ApplyPatch appends a new version produced by applying a unified diff to
// the session's current content.
func (c *Coordinator) ApplyPatch(ctx context.Context, sessionID string, patch []byte, description string) (*snapshot.Version, error) {
	ctx, span := startOpSpan(ctx, "ApplyPatch", sessionID)
	defer span.End()
	start := time.Now()

	v, err := c.sessions.ApplyPatch(ctx, sessionID, patch, description)
	recordOpMetrics(ctx, "apply_patch", start, err)
	if err != nil {
		return nil, spanError(span, "apply_patch", sessionID, 0, err)
	}

	span.SetAttributes(
		attribute.Int("rewind.version", v.Number),
		attribute.Int("rewind.changed_files", v.ChangedFiles),
	)
	return &v, nil
}

// Revert appends a new version restoring the content of version target.
// History is preserved; the new version records what it restored.
func (c *Coordinator) Revert(ctx context.Context, sessionID string, target int, description string) (*snapshot.Version, error) {
	ctx, span := startOpSpan(ctx, "Revert", sessionID)
	defer span.End()
	start := time.Now()

	v, err := c.sessions.Revert(ctx, sessionID, target, description)
	recordOpMetrics(ctx, "revert", start, err)
	if err != nil {
		return nil, spanError(span, "revert", sessionID, target, err)
	}

	span.SetAttributes(
		attribute.Int("rewind.target", target),
		attribute.Int("rewind.version", v.Number),
	)
	return &v, nil
}

// ===== Reads =====

// CurrentSnapshot materializes the session's current file contents.
func (c *Coordinator) CurrentSnapshot(ctx context.Context, sessionID string) (snapshot.FileSet, error) {
	ctx, span := startOpSpan(ctx, "CurrentSnapshot", sessionID)
	defer span.End()
	start := time.Now()

	files, err := c.sessions.CurrentSnapshot(ctx, sessionID)
	recordOpMetrics(ctx, "current_snapshot", start, err)
	if err != nil {
		return nil, spanError(span, "current_snapshot", sessionID, 0, err)
	}

	span.SetAttributes(attribute.Int("rewind.files", len(files)))
	return files, nil
}

// SnapshotAt materializes the file contents of one version.
func (c *Coordinator) SnapshotAt(ctx context.Context, sessionID string, number int) (snapshot.FileSet, error) {
	ctx, span := startOpSpan(ctx, "SnapshotAt", sessionID)
	defer span.End()
	start := time.Now()

	files, err := c.sessions.SnapshotAt(ctx, sessionID, number)
	recordOpMetrics(ctx, "snapshot_at", start, err)
	if err != nil {
		return nil, spanError(span, "snapshot_at", sessionID, number, err)
	}

	span.SetAttributes(attribute.Int("rewind.files", len(files)))
	return files, nil
}

// History lists the session's version records oldest first, without diff
// payloads.
func (c *Coordinator) History(ctx context.Context, sessionID string) ([]snapshot.VersionSummary, error) {
	ctx, span := startOpSpan(ctx, "History", sessionID)
	defer span.End()
	start := time.Now()

	hist, err := c.sessions.History(ctx, sessionID)
	recordOpMetrics(ctx, "history", start, err)
	if err != nil {
		return nil, spanError(span, "history", sessionID, 0, err)
	}

	span.SetAttributes(attribute.Int("rewind.versions", len(hist)))
	return hist, nil
}

// RenderDiff renders the changes version number introduced as unified
// patch text. Version 1 renders every file as a creation. contextLines
// <= 0 uses the default (3); default-context renders are cached in the
// volatile tier keyed by the snapshot pair.
func (c *Coordinator) RenderDiff(ctx context.Context, sessionID string, number, contextLines int) (string, error) {
	ctx, span := startOpSpan(ctx, "RenderDiff", sessionID)
	defer span.End()
	start := time.Now()

	text, err := c.renderDiff(ctx, sessionID, number, contextLines)
	recordOpMetrics(ctx, "render_diff", start, err)
	if err != nil {
		return "", spanError(span, "render_diff", sessionID, number, err)
	}
	return text, nil
}

func (c *Coordinator) renderDiff(ctx context.Context, sessionID string, number, contextLines int) (string, error) {
	if contextLines <= 0 {
		contextLines = delta.DefaultContextLines
	}

	v, err := c.sessions.Version(ctx, sessionID, number)
	if err != nil {
		return "", err
	}

	// Version 1 has no base snapshot; its key uses the empty base ID.
	baseID := ""
	if number > 1 {
		prev, err := c.sessions.Version(ctx, sessionID, number-1)
		if err != nil {
			return "", err
		}
		baseID = prev.SnapshotID
	}

	key := store.DiffKey(baseID, v.SnapshotID)
	cacheable := contextLines == delta.DefaultContextLines
	if cacheable {
		if blob, ok := c.store.Blob(key); ok {
			return string(blob), nil
		}
	}

	var base snapshot.FileSet
	var d *delta.Diff
	if number == 1 {
		files, err := c.sessions.SnapshotAt(ctx, sessionID, 1)
		if err != nil {
			return "", err
		}
		base = snapshot.FileSet{}
		d = delta.Compute(base, files)
	} else {
		base, err = c.sessions.SnapshotAt(ctx, sessionID, number-1)
		if err != nil {
			return "", err
		}
		d, err = delta.Unmarshal(v.Diff)
		if err != nil {
			return "", fmt.Errorf("%w: decode diff for version %d: %v",
				snapshot.ErrDiffApplication, number, err)
		}
	}

	text, err := delta.Render(base, d, contextLines)
	if err != nil {
		return "", err
	}
	if cacheable {
		c.store.PutBlob(key, []byte(text))
	}
	return text, nil
}

// ===== Records =====

// Session returns one session record.
func (c *Coordinator) Session(ctx context.Context, sessionID string) (snapshot.Session, error) {
	sess, err := c.sessions.Session(ctx, sessionID)
	if err != nil {
		return snapshot.Session{}, &snapshot.OpError{Op: "session", SessionID: sessionID, Err: err}
	}
	return sess, nil
}

// Sessions lists every session record ordered by creation time.
func (c *Coordinator) Sessions(ctx context.Context) ([]snapshot.Session, error) {
	sessions, err := c.sessions.Sessions(ctx)
	if err != nil {
		return nil, &snapshot.OpError{Op: "sessions", Err: err}
	}
	return sessions, nil
}

// Version returns one version record including its serialized diff.
func (c *Coordinator) Version(ctx context.Context, sessionID string, number int) (snapshot.Version, error) {
	v, err := c.sessions.Version(ctx, sessionID, number)
	if err != nil {
		return snapshot.Version{}, &snapshot.OpError{Op: "version", SessionID: sessionID, Version: number, Err: err}
	}
	return v, nil
}

// Snapshot returns the full snapshot record behind one version, including
// per-file metadata.
func (c *Coordinator) Snapshot(ctx context.Context, sessionID string, number int) (*snapshot.Snapshot, error) {
	v, err := c.sessions.Version(ctx, sessionID, number)
	if err != nil {
		return nil, &snapshot.OpError{Op: "snapshot", SessionID: sessionID, Version: number, Err: err}
	}
	snap, err := c.store.Snapshot(ctx, v.SnapshotID)
	if err != nil {
		return nil, &snapshot.OpError{Op: "snapshot", SessionID: sessionID, Version: number, Err: err}
	}
	return &snap, nil
}

// Stats reports record counts, tier sizes, and cache effectiveness.
func (c *Coordinator) Stats(ctx context.Context) (store.Stats, error) {
	st, err := c.store.Stats(ctx)
	if err != nil {
		return store.Stats{}, &snapshot.OpError{Op: "stats", Err: err}
	}
	return st, nil
}

// ===== Lifecycle =====

// CloseSession marks a session read-only. Closing twice is a no-op.
func (c *Coordinator) CloseSession(ctx context.Context, sessionID string) error {
	ctx, span := startOpSpan(ctx, "CloseSession", sessionID)
	defer span.End()
	start := time.Now()

	err := c.sessions.CloseSession(ctx, sessionID)
	recordOpMetrics(ctx, "close_session", start, err)
	if err != nil {
		return spanError(span, "close_session", sessionID, 0, err)
	}
	return nil
}

// DeleteSession removes a session with its versions and snapshots.
// Returns the number of versions removed.
func (c *Coordinator) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	ctx, span := startOpSpan(ctx, "DeleteSession", sessionID)
	defer span.End()
	start := time.Now()

	n, err := c.sessions.DeleteSession(ctx, sessionID)
	recordOpMetrics(ctx, "delete_session", start, err)
	if err != nil {
		return 0, spanError(span, "delete_session", sessionID, 0, err)
	}

	span.SetAttributes(attribute.Int("rewind.versions_removed", n))
	return n, nil
}

// PruneSessions deletes sessions idle longer than olderThan. Returns the
// number of sessions removed.
func (c *Coordinator) PruneSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	ctx, span := startOpSpan(ctx, "PruneSessions", "")
	defer span.End()
	start := time.Now()

	n, err := c.sessions.Prune(ctx, olderThan)
	recordOpMetrics(ctx, "prune_sessions", start, err)
	if err != nil {
		return 0, spanError(span, "prune_sessions", "", 0, err)
	}

	span.SetAttributes(attribute.Int("rewind.sessions_removed", n))
	return n, nil
}

// RunGC triggers one value-log garbage collection cycle on the durable
// tier, independent of the background runner. Returns nil when nothing
// needed collecting.
func (c *Coordinator) RunGC() error {
	return c.durable.RunGC(c.config.GCDiscardRatio)
}
