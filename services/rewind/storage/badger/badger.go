// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger owns the BadgerDB instance backing the durable snapshot
// tier: open/close lifecycle, transaction helpers, and value log GC.
//
// Snapshot blobs, version records, and session records share one keyspace
// so a snapshot and the version pointing at it commit atomically. Badger's
// value log holds the (compressed) snapshot blobs, which is why periodic
// value log GC matters here more than in a small-value workload.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
// This package follows Apache 2.0 guidelines for attribution and usage.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config holds configuration for the durable tier's BadgerDB instance.
type Config struct {
	// Path is the database directory, created on open. Required unless
	// InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Tests use this; nothing survives
	// Close.
	InMemory bool

	// SyncWrites makes every commit fsync. Ingestion acknowledgments
	// promise durability, so production keeps this on.
	SyncWrites bool

	// Logger receives badger's internal log lines. Nil silences them.
	Logger *slog.Logger

	// NumVersionsToKeep is badger's per-key version retention. Every key
	// here is written at most once, so 1 suffices.
	NumVersionsToKeep int

	// GCInterval is the period of the background value log GC runner.
	// 0 disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the fraction of a value log file that must be
	// stale before a GC cycle rewrites it.
	GCDiscardRatio float64
}

// DefaultConfig returns the production settings: fsync on commit, one
// version per key, GC every five minutes at a 0.5 discard ratio.
func DefaultConfig() Config {
	return Config{
		SyncWrites:        true,
		NumVersionsToKeep: 1,
		GCInterval:        5 * time.Minute,
		GCDiscardRatio:    0.5,
	}
}

// InMemoryConfig returns the test settings: RAM only, no fsync, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:          true,
		SyncWrites:        false,
		NumVersionsToKeep: 1,
		GCInterval:        0,
	}
}

// DB is the managed database handle: the underlying *badger.DB plus the GC
// runner it owns. Safe for concurrent use.
type DB struct {
	*badger.DB
	gc       *GCRunner
	path     string
	inMemory bool
}

// Open opens the database described by cfg, creating the directory when
// needed, and starts the GC runner when GCInterval is set. Close releases
// both.
func Open(cfg Config) (*DB, error) {
	opts, err := buildOptions(cfg)
	if err != nil {
		return nil, err
	}

	raw, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Path, err)
	}

	db := &DB{DB: raw, path: cfg.Path, inMemory: cfg.InMemory}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		runner, err := NewGCRunner(raw, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		if err != nil {
			raw.Close()
			return nil, fmt.Errorf("create GC runner: %w", err)
		}
		db.gc = runner
		runner.Start()
	}

	return db, nil
}

// OpenInMemory opens a throwaway in-memory database for tests.
func OpenInMemory() (*DB, error) {
	return Open(InMemoryConfig())
}

func buildOptions(cfg Config) (badger.Options, error) {
	if cfg.InMemory {
		opts := badger.DefaultOptions("").WithInMemory(true)
		return applyCommon(opts, cfg), nil
	}

	if cfg.Path == "" {
		return badger.Options{}, errors.New("path is required unless running in-memory")
	}
	if err := os.MkdirAll(cfg.Path, 0750); err != nil {
		return badger.Options{}, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
	}
	return applyCommon(badger.DefaultOptions(cfg.Path), cfg), nil
}

func applyCommon(opts badger.Options, cfg Config) badger.Options {
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(cfg.NumVersionsToKeep)
	if cfg.Logger == nil {
		return opts.WithLogger(nil)
	}
	return opts.WithLogger(slogAdapter{cfg.Logger})
}

// slogAdapter bridges badger's printf-style Logger interface onto slog.
type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) Errorf(format string, args ...interface{})   { a.l.Error(trimf(format, args)) }
func (a slogAdapter) Warningf(format string, args ...interface{}) { a.l.Warn(trimf(format, args)) }
func (a slogAdapter) Infof(format string, args ...interface{})    { a.l.Info(trimf(format, args)) }
func (a slogAdapter) Debugf(format string, args ...interface{})   { a.l.Debug(trimf(format, args)) }

// badger terminates its log lines with \n; slog adds its own.
func trimf(format string, args []interface{}) string {
	s := fmt.Sprintf(format, args...)
	for len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	return s
}

// Close stops the GC runner, if any, then closes the database.
func (d *DB) Close() error {
	if d.gc != nil {
		d.gc.Stop()
	}
	return d.DB.Close()
}

// Path returns the database directory, empty for in-memory databases.
func (d *DB) Path() string { return d.path }

// InMemory reports whether this database lives only in RAM.
func (d *DB) InMemory() bool { return d.inMemory }

// WithTxn runs fn inside a read-write transaction. The transaction commits
// when fn returns nil and is discarded otherwise.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	return d.inTxn(ctx, true, fn)
}

// WithReadTxn runs fn inside a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	return d.inTxn(ctx, false, fn)
}

// inTxn is the shared transaction plumbing. The context is checked once up
// front: badger transactions never block mid-flight, so a deadline can only
// be honored before the work starts.
func (d *DB) inTxn(ctx context.Context, update bool, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	txn := d.DB.NewTransaction(update)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	if !update {
		return nil
	}
	return txn.Commit()
}

// RunGCOnce triggers one value log GC cycle immediately, independent of the
// background runner. A cycle that finds nothing to reclaim returns nil.
func (d *DB) RunGCOnce(ratio float64) error {
	if d.inMemory {
		return nil
	}
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultConfig().GCDiscardRatio
	}
	if err := d.DB.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("value log GC: %w", err)
	}
	return nil
}

// GCRunner triggers value log garbage collection on a fixed interval until
// stopped.
type GCRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewGCRunner validates the inputs and returns an idle runner; nothing
// happens until Start.
func NewGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) (*GCRunner, error) {
	switch {
	case db == nil:
		return nil, errors.New("db must not be nil")
	case interval <= 0:
		return nil, errors.New("interval must be positive")
	case ratio < 0 || ratio > 1:
		return nil, errors.New("ratio must be between 0 and 1")
	}

	return &GCRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the collection goroutine.
func (r *GCRunner) Start() {
	go r.loop()
}

// Stop signals the goroutine and blocks until it exits.
func (r *GCRunner) Stop() {
	close(r.stop)
	<-r.done
}

func (r *GCRunner) loop() {
	defer close(r.done)

	tick := time.NewTicker(r.interval)
	defer tick.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-tick.C:
			r.collect()
		}
	}
}

func (r *GCRunner) collect() {
	// ErrNoRewrite just means no value log file crossed the discard
	// ratio this cycle.
	err := r.db.RunValueLogGC(r.ratio)
	switch {
	case err == nil:
		if r.logger != nil {
			r.logger.Debug("value log GC reclaimed a file")
		}
	case errors.Is(err, badger.ErrNoRewrite):
	default:
		if r.logger != nil {
			r.logger.Warn("value log GC failed", slog.String("error", err.Error()))
		}
	}
}
