// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot defines the core datatypes of the versioning store:
// sessions, snapshots, version records, and the file sets they capture.
//
// # Design Principles
//
// Records are immutable after creation. Any edit to a captured file set
// produces a new Snapshot and a new Version record; history is append-only.
// Timestamps are int64 UnixMilli per project conventions. No
// map[string]interface{} - concrete types only.
//
// # Thread Safety
//
// Values in this package are plain data. They are safe to share once
// published; callers that mutate a FileSet before submission must not share
// it concurrently.
package snapshot

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// FileSet maps repository-relative paths to raw file content.
//
// Paths use forward slashes regardless of host OS. Content is held as raw
// bytes; text files are not assumed to be valid UTF-8.
type FileSet map[string][]byte

// Clone returns a deep copy of the file set.
func (fs FileSet) Clone() FileSet {
	out := make(FileSet, len(fs))
	for path, content := range fs {
		dup := make([]byte, len(content))
		copy(dup, content)
		out[path] = dup
	}
	return out
}

// Paths returns the file paths in lexical order.
func (fs FileSet) Paths() []string {
	paths := make([]string, 0, len(fs))
	for path := range fs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Equal reports whether both sets hold the same paths with byte-identical
// content.
func (fs FileSet) Equal(other FileSet) bool {
	if len(fs) != len(other) {
		return false
	}
	for path, content := range fs {
		theirs, ok := other[path]
		if !ok || !bytes.Equal(content, theirs) {
			return false
		}
	}
	return true
}

// TotalBytes returns the summed content size of all files.
func (fs FileSet) TotalBytes() int64 {
	var n int64
	for _, content := range fs {
		n += int64(len(content))
	}
	return n
}

// LineStats holds language-independent line metrics for one file.
type LineStats struct {
	// Total is the number of lines, counting a trailing unterminated line.
	Total int `json:"total"`

	// Blank is the number of whitespace-only lines.
	Blank int `json:"blank"`

	// Comment is the number of lines starting with a known line-comment
	// marker for the detected language. Zero when the language has none.
	Comment int `json:"comment"`

	// Code is Total minus Blank minus Comment.
	Code int `json:"code"`

	// MaxLineLength is the byte length of the longest line.
	MaxLineLength int `json:"max_line_length"`
}

// Metadata describes one captured file.
//
// Complexity is nil for languages without a structural analyzer; it is never
// fabricated. AnalysisIncomplete marks files whose structural analysis
// failed (parse error, size limit, invalid encoding); such files still carry
// size, language, and line metrics.
type Metadata struct {
	Language           string    `json:"language"`
	SizeBytes          int64     `json:"size_bytes"`
	ContentHash        string    `json:"content_hash"`
	Lines              LineStats `json:"lines"`
	Complexity         *float64  `json:"complexity,omitempty"`
	Dependencies       []string  `json:"dependencies,omitempty"`
	AnalysisIncomplete bool      `json:"analysis_incomplete,omitempty"`
}

// Snapshot is the immutable captured state of a file set at one point in
// time. The ContentHash is derived from the full file set and is stable
// across runs for identical content.
type Snapshot struct {
	ID          string              `json:"id"`
	SessionID   string              `json:"session_id"`
	CapturedAt  int64               `json:"captured_at"`
	ContentHash string              `json:"content_hash"`
	Files       FileSet             `json:"files"`
	Meta        map[string]Metadata `json:"meta"`
}

// Version associates a session, a sequence number, a snapshot, and the
// serialized diff from its predecessor.
//
// Numbers are contiguous per session starting at 1. Diff is nil for the
// first version. RevertedFrom is non-zero only on versions created by a
// revert and names the version whose content was restored.
type Version struct {
	ID           string `json:"id"`
	SessionID    string `json:"session_id"`
	SnapshotID   string `json:"snapshot_id"`
	Number       int    `json:"number"`
	Description  string `json:"description"`
	CreatedAt    int64  `json:"created_at"`
	Diff         []byte `json:"diff,omitempty"`
	ChangedFiles int    `json:"changed_files"`
	RevertedFrom int    `json:"reverted_from,omitempty"`
}

// VersionSummary is the read-side projection served by history listings.
type VersionSummary struct {
	Number       int    `json:"number"`
	SnapshotID   string `json:"snapshot_id"`
	Description  string `json:"description"`
	CreatedAt    int64  `json:"created_at"`
	ChangedFiles int    `json:"changed_files"`
	RevertedFrom int    `json:"reverted_from,omitempty"`
}

// Summary projects the version record to its listing form.
func (v Version) Summary() VersionSummary {
	return VersionSummary{
		Number:       v.Number,
		SnapshotID:   v.SnapshotID,
		Description:  v.Description,
		CreatedAt:    v.CreatedAt,
		ChangedFiles: v.ChangedFiles,
		RevertedFrom: v.RevertedFrom,
	}
}

// Session is the durable record of one debugging context. The version
// sequence itself is stored as individual Version records; Current always
// references an existing version number within the session.
type Session struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
	Current   int    `json:"current_version"`
	Closed    bool   `json:"closed,omitempty"`
}

// NewID returns a fresh random identifier for sessions, snapshots, and
// version records.
func NewID() string {
	return uuid.NewString()
}
