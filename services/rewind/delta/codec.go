// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package delta

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatVersion is the current serialization format, semver. Decoders accept
// any record with the same major version and ignore unknown fields, so the
// format evolves additively and historic diffs stay applicable.
const FormatVersion = "1.0.0"

var (
	// ErrUnsupportedFormat is returned when a serialized diff declares a
	// format major version this decoder does not understand.
	ErrUnsupportedFormat = errors.New("unsupported diff format version")

	// ErrChecksumMismatch is returned when the payload does not match its
	// recorded checksum, indicating corruption at rest.
	ErrChecksumMismatch = errors.New("diff checksum mismatch")

	// ErrMalformedDiff is returned when a serialized diff cannot be parsed.
	ErrMalformedDiff = errors.New("malformed serialized diff")
)

// envelope is the on-disk form of a Diff.
type envelope struct {
	FormatVersion string   `json:"format_version"`
	CreatedAt     int64    `json:"created_at"`
	Checksum      string   `json:"checksum"`
	Ops           []FileOp `json:"ops"`
}

// Marshal serializes the diff into its stable envelope format.
func Marshal(d *Diff) ([]byte, error) {
	if d == nil {
		d = &Diff{}
	}
	sum, err := opsChecksum(d.Ops)
	if err != nil {
		return nil, fmt.Errorf("checksum ops: %w", err)
	}
	env := envelope{
		FormatVersion: FormatVersion,
		CreatedAt:     time.Now().UnixMilli(),
		Checksum:      sum,
		Ops:           d.Ops,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal diff envelope: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a serialized diff, verifying format version and
// checksum. Records written by any 1.x encoder decode successfully.
func Unmarshal(data []byte) (*Diff, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDiff, err)
	}
	if env.FormatVersion == "" {
		return nil, fmt.Errorf("%w: missing format_version", ErrMalformedDiff)
	}
	if !formatSupported(env.FormatVersion) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, env.FormatVersion)
	}
	if env.Checksum != "" {
		sum, err := opsChecksum(env.Ops)
		if err != nil {
			return nil, fmt.Errorf("checksum ops: %w", err)
		}
		if sum != env.Checksum {
			return nil, fmt.Errorf("%w: recorded %s, computed %s", ErrChecksumMismatch, env.Checksum, sum)
		}
	}
	return &Diff{Ops: env.Ops}, nil
}

// formatSupported reports whether the decoder understands the record's
// format, matching on major version only.
func formatSupported(version string) bool {
	major, _, found := strings.Cut(version, ".")
	if !found {
		return false
	}
	n, err := strconv.Atoi(major)
	if err != nil {
		return false
	}
	current, _, _ := strings.Cut(FormatVersion, ".")
	m, _ := strconv.Atoi(current)
	return n == m
}

// opsChecksum hashes the canonical JSON of the op list. Op ordering and
// struct field order are deterministic, so identical diffs always produce
// identical checksums.
func opsChecksum(ops []FileOp) (string, error) {
	payload, err := json.Marshal(ops)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
