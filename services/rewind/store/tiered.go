// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianRewind/services/rewind/cache"
	"github.com/AleutianAI/AleutianRewind/services/rewind/snapshot"
)

// Tiered fronts a durable Store with the in-process blob cache.
//
// # Behavior
//
// Reads consult the cache first; a miss loads from the durable tier, primes
// the cache, and returns. Concurrent misses on the same key collapse into a
// single durable load via singleflight. Writes prime the cache before the
// durable commit; a durable failure invalidates the primed entries so the
// two tiers never disagree. The cache is never the sole holder of a record:
// everything in it is reconstructible from the durable tier.
//
// Oversized records are rejected by the cache's size class and simply
// resolve through the durable tier on every read. Cache trouble is absorbed
// here, never surfaced to callers.
//
// Thread Safety: safe for concurrent use.
type Tiered struct {
	inner  Store
	blobs  *cache.BlobCache
	flight singleflight.Group
	logger *slog.Logger
	ttl    time.Duration // 0 means the cache's default TTL
}

// NewTiered wraps inner with the given blob cache. The Tiered store takes
// ownership of inner's lifecycle; Close closes both tiers.
func NewTiered(inner Store, blobs *cache.BlobCache, logger *slog.Logger) *Tiered {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Tiered{inner: inner, blobs: blobs, logger: logger}
}

// SaveSession writes through the cache to the durable tier.
func (t *Tiered) SaveSession(ctx context.Context, sess snapshot.Session) error {
	key := SessionKey(sess.ID)
	t.prime(key, sess)

	if err := t.inner.SaveSession(ctx, sess); err != nil {
		t.blobs.Invalidate(key)
		return err
	}
	return nil
}

// Session loads a session, cache first.
func (t *Tiered) Session(ctx context.Context, id string) (snapshot.Session, error) {
	var sess snapshot.Session
	err := t.fetch(ctx, SessionKey(id), &sess, func() (interface{}, error) {
		return t.inner.Session(ctx, id)
	})
	if err != nil {
		return snapshot.Session{}, err
	}
	return sess, nil
}

// Sessions lists sessions straight from the durable tier. Listings change
// on every write and are not worth cache slots.
func (t *Tiered) Sessions(ctx context.Context) ([]snapshot.Session, error) {
	return t.inner.Sessions(ctx)
}

// DeleteSession cascades the delete durably, then drops every cached record
// the session could have populated.
func (t *Tiered) DeleteSession(ctx context.Context, id string) (int, error) {
	// Snapshot keys are not session-prefixed, so collect them before the
	// rows disappear. A failure here just means a broader invalidation.
	var snapshotKeys []string
	if versions, err := t.inner.Versions(ctx, id); err == nil {
		for _, v := range versions {
			snapshotKeys = append(snapshotKeys, SnapshotKey(v.SnapshotID))
		}
	}

	n, err := t.inner.DeleteSession(ctx, id)
	if err != nil {
		return 0, err
	}

	t.blobs.Invalidate(SessionKey(id))
	t.blobs.InvalidatePrefix(VersionPrefix(id))
	for _, key := range snapshotKeys {
		t.blobs.Invalidate(key)
	}
	return n, nil
}

// SaveVersion primes the cache with the snapshot and version record, then
// commits durably. On durable failure the primed entries are invalidated
// and the error is returned unchanged.
func (t *Tiered) SaveVersion(ctx context.Context, snap snapshot.Snapshot, v snapshot.Version) error {
	snapKey := SnapshotKey(snap.ID)
	verKey := VersionKey(v.SessionID, v.Number)

	t.prime(snapKey, snap)
	t.prime(verKey, v)

	if err := t.inner.SaveVersion(ctx, snap, v); err != nil {
		t.blobs.Invalidate(snapKey)
		t.blobs.Invalidate(verKey)
		return err
	}

	// The session's current pointer advanced durably; refresh it lazily on
	// the next read rather than guessing its full record here.
	t.blobs.Invalidate(SessionKey(v.SessionID))
	return nil
}

// Snapshot loads a snapshot, cache first.
func (t *Tiered) Snapshot(ctx context.Context, id string) (snapshot.Snapshot, error) {
	var snap snapshot.Snapshot
	err := t.fetch(ctx, SnapshotKey(id), &snap, func() (interface{}, error) {
		return t.inner.Snapshot(ctx, id)
	})
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return snap, nil
}

// SnapshotIfCached probes the volatile tier only. Used by snapshot
// reconstruction to find its nearest materialized starting point without
// forcing durable reads.
func (t *Tiered) SnapshotIfCached(id string) (snapshot.Snapshot, bool) {
	key := SnapshotKey(id)
	raw, ok := t.blobs.Get(key)
	if !ok {
		return snapshot.Snapshot{}, false
	}

	var snap snapshot.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.dropUndecodable(key, err)
		return snapshot.Snapshot{}, false
	}
	return snap, true
}

// Version loads one version record, cache first.
func (t *Tiered) Version(ctx context.Context, sessionID string, number int) (snapshot.Version, error) {
	var v snapshot.Version
	err := t.fetch(ctx, VersionKey(sessionID, number), &v, func() (interface{}, error) {
		return t.inner.Version(ctx, sessionID, number)
	})
	if err != nil {
		return snapshot.Version{}, err
	}
	return v, nil
}

// Versions lists version records straight from the durable tier.
func (t *Tiered) Versions(ctx context.Context, sessionID string) ([]snapshot.Version, error) {
	return t.inner.Versions(ctx, sessionID)
}

// PutBlob caches an opaque blob (rendered diffs, derived artifacts) under
// key. Purely volatile; nothing durable depends on it.
func (t *Tiered) PutBlob(key string, blob []byte) {
	t.blobs.Put(key, blob, t.ttl)
}

// Blob returns a previously cached opaque blob.
func (t *Tiered) Blob(key string) ([]byte, bool) {
	return t.blobs.Get(key)
}

// Stats reports durable counters with cache counters attached.
func (t *Tiered) Stats(ctx context.Context) (Stats, error) {
	st, err := t.inner.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	cs := t.blobs.Stats()
	st.Cache = &cs
	return st, nil
}

// Close clears the volatile tier and closes the durable one.
func (t *Tiered) Close() error {
	t.blobs.Clear()
	return t.inner.Close()
}

// prime serializes a record into the cache ahead of its durable write.
// Oversized records are rejected by the size class and simply resolve
// through the durable tier.
func (t *Tiered) prime(key string, record interface{}) {
	raw, err := json.Marshal(record)
	if err != nil {
		return
	}
	t.blobs.Put(key, raw, t.ttl)
}

// fetch resolves one record: cache hit decodes in place; a miss collapses
// concurrent loads of the same key, primes the cache, and hands every
// waiter the same serialized bytes to decode privately.
func (t *Tiered) fetch(ctx context.Context, key string, out interface{}, load func() (interface{}, error)) error {
	if raw, ok := t.blobs.Get(key); ok {
		err := json.Unmarshal(raw, out)
		if err == nil {
			return nil
		}
		t.dropUndecodable(key, err)
	}

	result, err, _ := t.flight.Do(key, func() (interface{}, error) {
		record, err := load()
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("encode record for cache: %w", err)
		}
		t.blobs.Put(key, raw, t.ttl)
		return raw, nil
	})
	if err != nil {
		return mapErr("load "+key, err)
	}

	raw, ok := result.([]byte)
	if !ok {
		return fmt.Errorf("%w: unexpected singleflight result for %s", snapshot.ErrStorageUnavailable, key)
	}
	return json.Unmarshal(raw, out)
}

// dropUndecodable evicts a cache entry whose bytes no longer decode. Seen
// only if the record layout changes between builds sharing a process.
func (t *Tiered) dropUndecodable(key string, err error) {
	t.logger.Warn("dropping undecodable cache entry",
		slog.String("key", key),
		slog.String("error", err.Error()))
	t.blobs.Invalidate(key)
}
