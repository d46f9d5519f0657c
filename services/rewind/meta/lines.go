// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package meta

import (
	"bytes"
	"strings"

	"github.com/AleutianAI/AleutianRewind/services/rewind/snapshot"
)

// CountLines computes line metrics for text content. A trailing line
// without a terminator still counts; empty content has zero lines. Comment
// counting only sees whole-line comments for the language's line-comment
// marker, which keeps the metric cheap and language-tolerant.
func CountLines(content []byte, lang string) snapshot.LineStats {
	var stats snapshot.LineStats
	if len(content) == 0 {
		return stats
	}

	marker := lineCommentMarker(lang)

	for start := 0; start < len(content); {
		end := bytes.IndexByte(content[start:], '\n')
		var line []byte
		if end < 0 {
			line = content[start:]
			start = len(content)
		} else {
			line = content[start : start+end]
			start += end + 1
		}

		stats.Total++
		if len(line) > stats.MaxLineLength {
			stats.MaxLineLength = len(line)
		}

		trimmed := strings.TrimSpace(string(line))
		switch {
		case trimmed == "":
			stats.Blank++
		case marker != "" && strings.HasPrefix(trimmed, marker):
			stats.Comment++
		}
	}

	stats.Code = stats.Total - stats.Blank - stats.Comment
	return stats
}
