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
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// HashContent returns the lowercase hex SHA256 of a single blob.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// HashFileSet returns a deterministic content address for a whole file set.
//
// Paths are folded in lexical order with length framing, so the hash is
// invariant to map iteration order and unambiguous under path/content
// concatenation. Identical file sets hash identically on every run.
func HashFileSet(fs FileSet) string {
	h := sha256.New()
	var frame [8]byte
	for _, path := range fs.Paths() {
		binary.BigEndian.PutUint64(frame[:], uint64(len(path)))
		h.Write(frame[:])
		h.Write([]byte(path))
		content := fs[path]
		binary.BigEndian.PutUint64(frame[:], uint64(len(content)))
		h.Write(frame[:])
		h.Write(content)
	}
	return hex.EncodeToString(h.Sum(nil))
}
