// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import "strings"

// ColorizeDiff applies terminal styling to a unified diff.
//
// File headers (---/+++) render bold, hunk headers (@@) in the accent
// color, added lines in the addition color, and removed lines in the
// deletion color. Context lines and the no-newline marker stay unstyled.
// In machine mode the input is returned unchanged so piped output stays
// parseable.
func ColorizeDiff(diff string) string {
	if !ShouldShowColors() {
		return diff
	}
	if diff == "" {
		return diff
	}

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "+++ "):
			lines[i] = Styles.DiffHeader.Render(line)
		case strings.HasPrefix(line, "@@"):
			lines[i] = Styles.DiffHunk.Render(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = Styles.DiffAdd.Render(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = Styles.DiffDelete.Render(line)
		case strings.HasPrefix(line, `\`):
			lines[i] = Styles.Muted.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}
