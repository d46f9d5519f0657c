// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache implements the volatile tier of the snapshot store: an LRU
// blob cache with per-entry TTL and a size-class admission threshold.
//
// The cache is a performance optimization, never a source of truth. Every
// value admitted here is reconstructible from the durable store, so entries
// can be dropped at any time without correctness impact. Expired entries
// behave as misses and are reclaimed lazily on the next access touching
// them; no background sweep is required.
//
// # Thread Safety
//
// BlobCache is safe for concurrent use. Reads share an RWMutex read lock;
// writes take the write lock only for map/list surgery.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// BlobCache is a bounded in-memory key/blob store with TTL expiry.
type BlobCache struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	lru        *list.List
	totalBytes int64
	options    Options

	// Stats
	hits      int64
	misses    int64
	evictions int64
	rejected  int64
}

// New creates a BlobCache with the given options.
func New(opts ...Option) *BlobCache {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &BlobCache{
		entries: make(map[string]*entry),
		lru:     list.New(),
		options: options,
	}
}

// Get returns the blob stored under key.
//
// An absent or expired entry is a miss; expired entries are removed on the
// way out. The returned slice is shared with the cache and must not be
// modified by the caller.
func (c *BlobCache) Get(key string) ([]byte, bool) {
	now := time.Now().UnixMilli()

	c.mu.RLock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.RUnlock()
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	if now >= e.expiresAtMilli {
		c.mu.RUnlock()
		c.removeExpired(key, now)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	value := e.value
	atomic.StoreInt64(&e.lastAccessMilli, now)
	c.mu.RUnlock()

	c.touchLRU(e)
	atomic.AddInt64(&c.hits, 1)
	return value, true
}

// Put stores value under key with the given TTL, replacing any previous
// value (last writer wins). A non-positive TTL uses the configured default.
// The cache takes ownership of value; callers must not modify it afterward.
//
// Returns false when the payload exceeds the size-class threshold and was
// not admitted; oversized payloads always resolve through the durable tier.
func (c *BlobCache) Put(key string, value []byte, ttl time.Duration) bool {
	if key == "" {
		return false
	}
	if c.options.MaxObjectBytes > 0 && len(value) > c.options.MaxObjectBytes {
		atomic.AddInt64(&c.rejected, 1)
		return false
	}
	if ttl <= 0 {
		ttl = c.options.DefaultTTL
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.totalBytes += int64(len(value)) - int64(len(existing.value))
		existing.value = value
		existing.expiresAtMilli = now.Add(ttl).UnixMilli()
		existing.lastAccessMilli = now.UnixMilli()
		c.lru.MoveToFront(existing.lruElement)
		c.evictIfNeededLocked()
		return true
	}

	e := &entry{
		key:             key,
		value:           value,
		expiresAtMilli:  now.Add(ttl).UnixMilli(),
		lastAccessMilli: now.UnixMilli(),
	}
	e.lruElement = c.lru.PushFront(e)
	c.entries[key] = e
	c.totalBytes += int64(len(value))
	c.evictIfNeededLocked()
	return true
}

// Invalidate removes the entry stored under key, if any.
func (c *BlobCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.removeEntryLocked(e)
	}
}

// InvalidatePrefix removes every entry whose key starts with prefix. Used
// when a whole session's cached state must go at once.
func (c *BlobCache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			c.removeEntryLocked(e)
			removed++
		}
	}
	return removed
}

// Clear drops every entry.
func (c *BlobCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.lru.Init()
	c.totalBytes = 0
}

// Len returns the current entry count.
func (c *BlobCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *BlobCache) Stats() Stats {
	c.mu.RLock()
	entryCount := len(c.entries)
	totalBytes := c.totalBytes
	c.mu.RUnlock()

	return Stats{
		EntryCount:     entryCount,
		TotalBytes:     totalBytes,
		Hits:           atomic.LoadInt64(&c.hits),
		Misses:         atomic.LoadInt64(&c.misses),
		Evictions:      atomic.LoadInt64(&c.evictions),
		Rejected:       atomic.LoadInt64(&c.rejected),
		MaxEntries:     c.options.MaxEntries,
		MaxObjectBytes: c.options.MaxObjectBytes,
	}
}

// touchLRU moves the entry to the front of the LRU list.
func (c *BlobCache) touchLRU(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.lruElement != nil {
		c.lru.MoveToFront(e.lruElement)
	}
}

// removeExpired re-checks expiry under the write lock before removing, so a
// concurrent Put that refreshed the entry is not clobbered.
func (c *BlobCache) removeExpired(key string, now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || now < e.expiresAtMilli {
		return
	}
	c.removeEntryLocked(e)
	atomic.AddInt64(&c.evictions, 1)
}

// removeEntryLocked unlinks an entry from the map and LRU list. Caller
// holds the write lock.
func (c *BlobCache) removeEntryLocked(e *entry) {
	delete(c.entries, e.key)
	if e.lruElement != nil {
		c.lru.Remove(e.lruElement)
		e.lruElement = nil
	}
	c.totalBytes -= int64(len(e.value))
}

// evictIfNeededLocked enforces the entry-count and total-size bounds by
// evicting from the LRU tail. Caller holds the write lock.
func (c *BlobCache) evictIfNeededLocked() {
	for len(c.entries) > c.options.MaxEntries ||
		(c.options.MaxTotalBytes > 0 && c.totalBytes > c.options.MaxTotalBytes) {
		back := c.lru.Back()
		if back == nil {
			return
		}
		c.removeEntryLocked(back.Value.(*entry))
		atomic.AddInt64(&c.evictions, 1)
	}
}
