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
	"fmt"
	"strings"
)

// Keys are derived deterministically from record identifiers so that a cache
// warmed from a cold durable store produces identical keys on every run.
const (
	sessionKeyPrefix  = "rewind:session:"
	snapshotKeyPrefix = "rewind:snapshot:"
	versionKeyPrefix  = "rewind:version:"
	diffKeyPrefix     = "rewind:diff:"
)

// SessionKey returns the storage key for a session record.
func SessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// SnapshotKey returns the storage key for a snapshot record.
func SnapshotKey(snapshotID string) string {
	return snapshotKeyPrefix + snapshotID
}

// VersionKey returns the storage key for one version record. Version numbers
// are zero-padded so lexical key order equals numeric version order.
func VersionKey(sessionID string, number int) string {
	return fmt.Sprintf("%s%s:%08d", versionKeyPrefix, sessionID, number)
}

// VersionPrefix returns the common prefix of every version key in a session.
func VersionPrefix(sessionID string) string {
	return versionKeyPrefix + sessionID + ":"
}

// DiffKey returns the cache key for a rendered diff between two snapshots.
// Rendered diffs live only in the volatile tier; the authoritative diff
// bytes travel inside version records.
func DiffKey(baseSnapshotID, targetSnapshotID string) string {
	return diffKeyPrefix + baseSnapshotID + ":" + targetSnapshotID
}

// parseVersionNumber extracts the version number from a version key given
// its session prefix.
func parseVersionNumber(key, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(rest, "%08d", &n); err != nil {
		return 0, false
	}
	return n, true
}
