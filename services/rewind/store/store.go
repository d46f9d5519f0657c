// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists sessions, snapshots, and version records, and
// layers the volatile cache tier over the durable one.
//
// # Architecture
//
// Durable is the source of truth: a BadgerDB-backed store whose writes are
// atomic per record pair (a snapshot and its version record become visible
// together or not at all). Tiered wraps any Store with the in-process blob
// cache: reads consult the cache first and populate it on miss, writes prime
// the cache before committing durably. Callers hold the Store interface and
// never branch on which tier served a read.
//
// # Error Mapping
//
// Backend failures surface as snapshot.ErrStorageUnavailable. Domain
// conditions (missing session, missing snapshot, version out of range,
// closed session) surface as their own sentinel kinds and pass through the
// tiers unchanged.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianRewind/services/rewind/cache"
	"github.com/AleutianAI/AleutianRewind/services/rewind/snapshot"
	"github.com/AleutianAI/AleutianRewind/services/rewind/storage/badger"
)

// Store is the uniform persistence surface for the versioning store. Both
// the durable tier and the cache-fronted tier implement it.
type Store interface {
	// SaveSession creates or replaces a session record.
	SaveSession(ctx context.Context, sess snapshot.Session) error

	// Session loads a session record. Missing sessions report
	// snapshot.ErrSessionNotFound.
	Session(ctx context.Context, id string) (snapshot.Session, error)

	// Sessions lists all session records ordered by creation time.
	Sessions(ctx context.Context) ([]snapshot.Session, error)

	// DeleteSession removes a session and cascades to its version records
	// and the snapshots they reference. Returns the number of versions
	// removed.
	DeleteSession(ctx context.Context, id string) (int, error)

	// SaveVersion atomically persists a snapshot with its version record
	// and advances the session's current pointer. Re-saving an identical
	// version is an idempotent no-op.
	SaveVersion(ctx context.Context, snap snapshot.Snapshot, v snapshot.Version) error

	// Snapshot loads a snapshot by identifier. Missing snapshots report
	// snapshot.ErrSnapshotNotFound.
	Snapshot(ctx context.Context, id string) (snapshot.Snapshot, error)

	// SnapshotIfCached returns a snapshot only when the volatile tier
	// already holds it. The durable tier always reports false; it exists
	// so reconstruction can find its nearest cached starting point
	// without forcing durable reads.
	SnapshotIfCached(id string) (snapshot.Snapshot, bool)

	// Version loads one version record by session and number.
	Version(ctx context.Context, sessionID string, number int) (snapshot.Version, error)

	// Versions lists a session's version records in ascending number
	// order.
	Versions(ctx context.Context, sessionID string) ([]snapshot.Version, error)

	// Stats reports record counts and tier sizes.
	Stats(ctx context.Context) (Stats, error)

	// Close releases the underlying resources.
	Close() error
}

// Stats reports store-level counters. Cache is nil when no volatile tier is
// attached.
type Stats struct {
	Sessions  int64        `json:"sessions"`
	Snapshots int64        `json:"snapshots"`
	Versions  int64        `json:"versions"`
	LSMBytes  int64        `json:"lsm_bytes"`
	VLogBytes int64        `json:"vlog_bytes"`
	Cache     *cache.Stats `json:"cache,omitempty"`
}

// mapErr classifies err: domain sentinel kinds pass through untouched,
// anything else is a backend failure wrapped as ErrStorageUnavailable.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isDomainErr(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", snapshot.ErrStorageUnavailable, op, err)
}

func isDomainErr(err error) bool {
	return errors.Is(err, snapshot.ErrSessionNotFound) ||
		errors.Is(err, snapshot.ErrSnapshotNotFound) ||
		errors.Is(err, snapshot.ErrInvalidVersion) ||
		errors.Is(err, snapshot.ErrSessionClosed) ||
		errors.Is(err, snapshot.ErrInvalidInput)
}

// ===== Durable store =====

// Durable is the BadgerDB-backed source of truth.
//
// Thread Safety: safe for concurrent use. Write conflicts between
// transactions surface as ErrStorageUnavailable and are retryable; the
// session manager's per-session locking keeps same-session writers from
// conflicting in the first place.
type Durable struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenDurable opens the durable tier with the given database configuration.
//
// Inputs:
//
//	cfg - BadgerDB configuration. Use badger.InMemoryConfig() in tests.
//	logger - Structured logger. Nil disables store logging.
//
// Outputs:
//
//	*Durable - The opened store. Caller must Close() it.
//	error - Non-nil if the database cannot be opened.
func OpenDurable(cfg badger.Config, logger *slog.Logger) (*Durable, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, err := badger.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open durable store: %w", err)
	}

	logger.Info("durable store opened",
		slog.String("path", db.Path()),
		slog.Bool("in_memory", db.InMemory()),
		slog.Bool("sync_writes", cfg.SyncWrites))

	return &Durable{db: db, logger: logger}, nil
}

// NewDurable wraps an already-open database. The caller keeps ownership of
// db's lifecycle unless it calls Close on the returned store.
func NewDurable(db *badger.DB, logger *slog.Logger) *Durable {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Durable{db: db, logger: logger}
}

// SaveSession creates or replaces a session record.
func (d *Durable) SaveSession(ctx context.Context, sess snapshot.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("%w: session id is empty", snapshot.ErrInvalidInput)
	}

	value, err := marshalRecord(sess)
	if err != nil {
		return mapErr("encode session", err)
	}

	err = d.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set([]byte(SessionKey(sess.ID)), value)
	})
	return mapErr("save session", err)
}

// Session loads a session record by identifier.
func (d *Durable) Session(ctx context.Context, id string) (snapshot.Session, error) {
	var sess snapshot.Session
	err := d.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		return readRecord(txn, SessionKey(id), &sess)
	})
	if err != nil {
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return snapshot.Session{}, fmt.Errorf("%w: %s", snapshot.ErrSessionNotFound, id)
		}
		return snapshot.Session{}, mapErr("load session", err)
	}
	return sess, nil
}

// Sessions lists all session records ordered by creation time, oldest
// first. Ties break on identifier for a stable order.
func (d *Durable) Sessions(ctx context.Context) ([]snapshot.Session, error) {
	var sessions []snapshot.Session

	err := d.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(sessionKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var sess snapshot.Session
			err := it.Item().Value(func(val []byte) error {
				return unmarshalRecord(val, &sess)
			})
			if err != nil {
				return err
			}
			sessions = append(sessions, sess)
		}
		return nil
	})
	if err != nil {
		return nil, mapErr("list sessions", err)
	}

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt != sessions[j].CreatedAt {
			return sessions[i].CreatedAt < sessions[j].CreatedAt
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions, nil
}

// SaveVersion atomically persists a snapshot with its version record and
// advances the session's current pointer, all in one transaction.
//
// Description:
//
//	Referential integrity is enforced here: the owning session must exist
//	and be open, and the version record must reference the snapshot being
//	written. Re-saving a version that already exists with the same
//	identifiers is an idempotent no-op; a different record under an
//	existing number is rejected so history can never be rewritten.
//
// Inputs:
//
//	ctx - Cancellation before the transaction starts.
//	snap - The full snapshot record. Skipped if already stored.
//	v - The version record; v.SnapshotID must equal snap.ID.
//
// Outputs:
//
//	error - snapshot.ErrSessionNotFound, ErrSessionClosed,
//	        ErrInvalidVersion, ErrInvalidInput, or ErrStorageUnavailable.
func (d *Durable) SaveVersion(ctx context.Context, snap snapshot.Snapshot, v snapshot.Version) error {
	if v.SessionID == "" || v.SnapshotID == "" || v.ID == "" {
		return fmt.Errorf("%w: version record is missing identifiers", snapshot.ErrInvalidInput)
	}
	if snap.ID != v.SnapshotID {
		return fmt.Errorf("%w: version references snapshot %s, got %s",
			snapshot.ErrInvalidInput, v.SnapshotID, snap.ID)
	}
	if snap.SessionID != v.SessionID {
		return fmt.Errorf("%w: snapshot belongs to session %s, version to %s",
			snapshot.ErrInvalidInput, snap.SessionID, v.SessionID)
	}
	if v.Number < 1 {
		return fmt.Errorf("%w: version number %d", snapshot.ErrInvalidVersion, v.Number)
	}

	snapValue, err := marshalRecord(snap)
	if err != nil {
		return mapErr("encode snapshot", err)
	}
	verValue, err := marshalRecord(v)
	if err != nil {
		return mapErr("encode version", err)
	}

	err = d.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		var sess snapshot.Session
		if err := readRecord(txn, SessionKey(v.SessionID), &sess); err != nil {
			if errors.Is(err, dgbadger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", snapshot.ErrSessionNotFound, v.SessionID)
			}
			return err
		}
		if sess.Closed {
			return fmt.Errorf("%w: %s", snapshot.ErrSessionClosed, v.SessionID)
		}

		verKey := VersionKey(v.SessionID, v.Number)
		var existing snapshot.Version
		err := readRecord(txn, verKey, &existing)
		switch {
		case err == nil:
			if existing.ID == v.ID && existing.SnapshotID == v.SnapshotID {
				return nil
			}
			return fmt.Errorf("%w: version %d already exists in session %s",
				snapshot.ErrInvalidVersion, v.Number, v.SessionID)
		case !errors.Is(err, dgbadger.ErrKeyNotFound):
			return err
		}

		// An existing snapshot row under the same identifier is the same
		// snapshot; identifiers are never reused across content.
		snapKey := []byte(SnapshotKey(snap.ID))
		if _, err := txn.Get(snapKey); errors.Is(err, dgbadger.ErrKeyNotFound) {
			if err := txn.Set(snapKey, snapValue); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if err := txn.Set([]byte(verKey), verValue); err != nil {
			return err
		}

		if v.Number > sess.Current {
			sess.Current = v.Number
			sessValue, err := marshalRecord(sess)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(SessionKey(sess.ID)), sessValue); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return mapErr("save version", err)
	}

	d.logger.Debug("version persisted",
		slog.String("session_id", v.SessionID),
		slog.Int("version", v.Number),
		slog.Int("changed_files", v.ChangedFiles))
	return nil
}

// Snapshot loads a snapshot record by identifier.
func (d *Durable) Snapshot(ctx context.Context, id string) (snapshot.Snapshot, error) {
	var snap snapshot.Snapshot
	err := d.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		return readRecord(txn, SnapshotKey(id), &snap)
	})
	if err != nil {
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return snapshot.Snapshot{}, fmt.Errorf("%w: %s", snapshot.ErrSnapshotNotFound, id)
		}
		return snapshot.Snapshot{}, mapErr("load snapshot", err)
	}
	return snap, nil
}

// SnapshotIfCached always reports false: the durable tier has no volatile
// cache in front of it.
func (d *Durable) SnapshotIfCached(string) (snapshot.Snapshot, bool) {
	return snapshot.Snapshot{}, false
}

// Version loads one version record. A missing record distinguishes a
// missing session from an out-of-range number.
func (d *Durable) Version(ctx context.Context, sessionID string, number int) (snapshot.Version, error) {
	if number < 1 {
		return snapshot.Version{}, fmt.Errorf("%w: version number %d", snapshot.ErrInvalidVersion, number)
	}

	var v snapshot.Version
	err := d.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		err := readRecord(txn, VersionKey(sessionID, number), &v)
		if !errors.Is(err, dgbadger.ErrKeyNotFound) {
			return err
		}
		if _, serr := txn.Get([]byte(SessionKey(sessionID))); errors.Is(serr, dgbadger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", snapshot.ErrSessionNotFound, sessionID)
		} else if serr != nil {
			return serr
		}
		return fmt.Errorf("%w: version %d not found in session %s",
			snapshot.ErrInvalidVersion, number, sessionID)
	})
	if err != nil {
		return snapshot.Version{}, mapErr("load version", err)
	}
	return v, nil
}

// Versions lists a session's version records in ascending number order.
// Zero-padded keys make iteration order numeric without a post-sort.
func (d *Durable) Versions(ctx context.Context, sessionID string) ([]snapshot.Version, error) {
	var versions []snapshot.Version

	err := d.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		if _, err := txn.Get([]byte(SessionKey(sessionID))); errors.Is(err, dgbadger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", snapshot.ErrSessionNotFound, sessionID)
		} else if err != nil {
			return err
		}

		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := VersionPrefix(sessionID)
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if _, ok := parseVersionNumber(string(it.Item().Key()), prefix); !ok {
				continue // skip malformed keys
			}

			var v snapshot.Version
			err := it.Item().Value(func(val []byte) error {
				return unmarshalRecord(val, &v)
			})
			if err != nil {
				return err
			}
			versions = append(versions, v)
		}
		return nil
	})
	if err != nil {
		return nil, mapErr("list versions", err)
	}
	return versions, nil
}

// DeleteSession removes a session record, its version records, and the
// snapshots they reference.
//
// The session record is removed first so a crash mid-cascade leaves only
// unreachable rows, never a live session with missing history. Deletes are
// chunked across transactions to stay under BadgerDB's transaction size
// limit.
func (d *Durable) DeleteSession(ctx context.Context, id string) (int, error) {
	var keys [][]byte
	var versionCount int

	err := d.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		if _, err := txn.Get([]byte(SessionKey(id))); errors.Is(err, dgbadger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", snapshot.ErrSessionNotFound, id)
		} else if err != nil {
			return err
		}

		keys = append(keys, []byte(SessionKey(id)))

		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(VersionPrefix(id))
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var v snapshot.Version
			err := it.Item().Value(func(val []byte) error {
				return unmarshalRecord(val, &v)
			})
			if err != nil {
				return err
			}
			keys = append(keys, it.Item().KeyCopy(nil))
			keys = append(keys, []byte(SnapshotKey(v.SnapshotID)))
			versionCount++
		}
		return nil
	})
	if err != nil {
		return 0, mapErr("delete session", err)
	}

	const chunkSize = 256
	for start := 0; start < len(keys); start += chunkSize {
		end := start + chunkSize
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		err := d.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
			for _, key := range chunk {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return 0, mapErr("delete session", err)
		}
	}

	d.logger.Info("session deleted",
		slog.String("session_id", id),
		slog.Int("versions", versionCount))
	return versionCount, nil
}

// Stats counts records by key prefix and reports on-disk sizes.
func (d *Durable) Stats(ctx context.Context) (Stats, error) {
	var st Stats

	err := d.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for _, count := range []struct {
			prefix string
			dst    *int64
		}{
			{sessionKeyPrefix, &st.Sessions},
			{snapshotKeyPrefix, &st.Snapshots},
			{versionKeyPrefix, &st.Versions},
		} {
			prefix := []byte(count.prefix)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				*count.dst++
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, mapErr("stats", err)
	}

	st.LSMBytes, st.VLogBytes = d.db.Size()
	return st, nil
}

// RunGC triggers one value log garbage collection cycle. Safe to call on
// in-memory databases, where it is a no-op.
func (d *Durable) RunGC(ratio float64) error {
	return d.db.RunGCOnce(ratio)
}

// Close shuts down the underlying database.
func (d *Durable) Close() error {
	d.logger.Info("durable store closed")
	return d.db.Close()
}

// readRecord loads and decodes one record inside a transaction. Missing
// keys return dgbadger.ErrKeyNotFound for callers to classify.
func readRecord(txn *dgbadger.Txn, key string, out interface{}) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return unmarshalRecord(val, out)
	})
}
