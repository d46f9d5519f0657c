// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used as
// storage keys or rendered into diff output. Using these validators prevents
// path traversal and keeps snapshot paths safe to embed in unified diff
// headers.
package validation

import (
	"fmt"
	"strings"
)

// maxPathLength bounds stored paths. Longer keys bloat the index and are
// almost always scanner bugs rather than real files.
const maxPathLength = 4096

// ValidatePath validates a snapshot file path.
//
// Valid paths:
//   - 1-4096 characters
//   - Relative, with forward-slash separators
//   - No "." or ".." segments, no empty segments
//   - No backslashes or control characters
//
// Control characters are rejected because paths are embedded in unified
// diff headers, where a stray newline would corrupt the patch.
//
// Example:
//
//	if err := validation.ValidatePath(path); err != nil {
//	    return fmt.Errorf("%w: %v", snapshot.ErrInvalidInput, err)
//	}
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if len(path) > maxPathLength {
		return fmt.Errorf("path exceeds %d characters", maxPathLength)
	}
	if strings.ContainsRune(path, '\\') {
		return fmt.Errorf("path %q contains a backslash (use forward slashes)", path)
	}
	for _, r := range path {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("path %q contains a control character", path)
		}
	}
	for _, segment := range strings.Split(path, "/") {
		switch segment {
		case "":
			return fmt.Errorf("path %q is absolute or has an empty segment", path)
		case ".", "..":
			return fmt.Errorf("path %q contains a %q segment", path, segment)
		}
	}
	return nil
}

// ValidatePaths validates multiple snapshot file paths.
// Returns an error listing all invalid paths if any fail validation.
func ValidatePaths(paths []string) error {
	var invalid []string
	for _, p := range paths {
		if err := ValidatePath(p); err != nil {
			invalid = append(invalid, fmt.Sprintf("%q", p))
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid paths: %s", strings.Join(invalid, ", "))
	}
	return nil
}
