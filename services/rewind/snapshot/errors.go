// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations. Callers match with errors.Is.
var (
	// ErrSessionNotFound is returned when an operation names a session
	// identifier with no record in the durable store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSnapshotNotFound is returned when a version record references a
	// snapshot that cannot be loaded.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrInvalidVersion is returned when a revert target lies outside
	// [1, currentVersion].
	ErrInvalidVersion = errors.New("version out of range")

	// ErrDiffApplication is returned when a stored diff does not
	// reconstruct the expected content. This signals data corruption and
	// is never masked by a fallback.
	ErrDiffApplication = errors.New("diff does not reconstruct expected content")

	// ErrStorageUnavailable is returned when the durable tier cannot be
	// reached. Reads are safely retryable; ingestion writes are not
	// retried automatically.
	ErrStorageUnavailable = errors.New("durable store unavailable")

	// ErrCacheUnavailable marks volatile-tier failures. It is absorbed
	// inside the store (degrades to a durable read) and never surfaces to
	// callers; it exists so internal logs can classify the condition.
	ErrCacheUnavailable = errors.New("cache tier unavailable")

	// ErrSessionClosed is returned when ingesting into a session that was
	// explicitly closed.
	ErrSessionClosed = errors.New("session closed")

	// ErrInvalidInput is returned for malformed arguments such as an empty
	// file set or a nil context.
	ErrInvalidInput = errors.New("invalid input")
)

// OpError carries the failing operation and its session/version context.
//
// It wraps one of the sentinel errors above so errors.Is continues to work
// through the added context.
type OpError struct {
	// Op is the store operation, e.g. "ingest" or "revert".
	Op string `json:"op"`

	// SessionID is the session the operation targeted, if any.
	SessionID string `json:"session_id,omitempty"`

	// Version is the version number involved, if any.
	Version int `json:"version,omitempty"`

	// Err is the underlying error.
	Err error `json:"error"`
}

// Error implements the error interface.
func (e *OpError) Error() string {
	switch {
	case e.SessionID != "" && e.Version > 0:
		return fmt.Sprintf("%s session=%s version=%d: %v", e.Op, e.SessionID, e.Version, e.Err)
	case e.SessionID != "":
		return fmt.Sprintf("%s session=%s: %v", e.Op, e.SessionID, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OpError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler.
func (e *OpError) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"op":%q,"session_id":%q,"version":%d,"error":%q}`,
		e.Op, e.SessionID, e.Version, e.Err.Error())), nil
}
