// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"container/list"
	"time"
)

// Default configuration values.
const (
	// DefaultMaxEntries is the default maximum number of cached blobs.
	DefaultMaxEntries = 4096

	// DefaultTTL is the default expiry applied when Put receives a
	// non-positive TTL.
	DefaultTTL = time.Hour

	// DefaultMaxObjectBytes is the size-class threshold: payloads larger
	// than this are not admitted to the volatile tier and always resolve
	// through the durable store.
	DefaultMaxObjectBytes = 512 * 1024

	// DefaultMaxTotalBytes is the soft bound on summed payload size
	// (0 = unlimited).
	DefaultMaxTotalBytes = 256 * 1024 * 1024
)

// entry is one cached blob with its expiry bookkeeping.
type entry struct {
	key             string
	value           []byte
	expiresAtMilli  int64
	lastAccessMilli int64
	lruElement      *list.Element
}

// Stats contains counters describing cache behavior since construction.
type Stats struct {
	// EntryCount is the current number of live entries.
	EntryCount int `json:"entry_count"`

	// TotalBytes is the summed payload size of live entries.
	TotalBytes int64 `json:"total_bytes"`

	// Hits is the number of gets served from the cache.
	Hits int64 `json:"hits"`

	// Misses is the number of gets that found nothing, found an expired
	// entry, or arrived during an outage.
	Misses int64 `json:"misses"`

	// Evictions counts entries removed by LRU pressure or lazy expiry.
	Evictions int64 `json:"evictions"`

	// Rejected counts puts refused by the size-class threshold.
	Rejected int64 `json:"rejected"`

	// MaxEntries and MaxObjectBytes echo the configuration.
	MaxEntries     int `json:"max_entries"`
	MaxObjectBytes int `json:"max_object_bytes"`
}

// HitRate returns the hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Options configures a BlobCache.
type Options struct {
	// MaxEntries bounds the entry count; the least recently used entry is
	// evicted when exceeded.
	MaxEntries int

	// DefaultTTL applies when Put receives a non-positive TTL.
	DefaultTTL time.Duration

	// MaxObjectBytes is the per-payload admission threshold.
	MaxObjectBytes int

	// MaxTotalBytes is the soft bound on summed payload size
	// (0 = unlimited).
	MaxTotalBytes int64
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxEntries:     DefaultMaxEntries,
		DefaultTTL:     DefaultTTL,
		MaxObjectBytes: DefaultMaxObjectBytes,
		MaxTotalBytes:  DefaultMaxTotalBytes,
	}
}

// Option is a functional option for configuring a BlobCache.
type Option func(*Options)

// WithMaxEntries sets the maximum number of cached entries.
func WithMaxEntries(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxEntries = n
		}
	}
}

// WithDefaultTTL sets the TTL used when Put receives a non-positive TTL.
func WithDefaultTTL(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.DefaultTTL = d
		}
	}
}

// WithMaxObjectBytes sets the size-class admission threshold.
func WithMaxObjectBytes(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxObjectBytes = n
		}
	}
}

// WithMaxTotalBytes sets the soft bound on summed payload size.
func WithMaxTotalBytes(n int64) Option {
	return func(o *Options) {
		if n >= 0 {
			o.MaxTotalBytes = n
		}
	}
}
