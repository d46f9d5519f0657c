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
	"bytes"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/AleutianRewind/services/rewind/snapshot"
)

// ApplyUnified applies an externally-produced unified diff to a file set and
// returns the patched result. The input set is never mutated.
//
// Paths are taken from the +++ side (--- side for deletions) with a/ and b/
// prefixes stripped. Hunks are verified against their context lines; any
// mismatch fails the whole application with snapshot.ErrDiffApplication so a
// partially-patched set is never returned.
func ApplyUnified(base snapshot.FileSet, patch []byte) (snapshot.FileSet, error) {
	fileDiffs, err := diff.NewMultiFileDiffReader(bytes.NewReader(patch)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("%w: parse unified diff: %v", snapshot.ErrInvalidInput, err)
	}
	if len(fileDiffs) == 0 {
		return nil, fmt.Errorf("%w: patch contains no file diffs", snapshot.ErrInvalidInput)
	}

	out := base.Clone()
	for _, fd := range fileDiffs {
		origName := stripDiffPrefix(fd.OrigName)
		newName := stripDiffPrefix(fd.NewName)

		switch {
		case fd.NewName == "/dev/null":
			if _, ok := out[origName]; !ok {
				return nil, fmt.Errorf("%w: patch deletes %q which is absent", snapshot.ErrDiffApplication, origName)
			}
			delete(out, origName)

		case fd.OrigName == "/dev/null":
			if _, ok := out[newName]; ok {
				return nil, fmt.Errorf("%w: patch creates %q which already exists", snapshot.ErrDiffApplication, newName)
			}
			content, err := newFileContent(fd)
			if err != nil {
				return nil, fmt.Errorf("%w: create %q: %v", snapshot.ErrDiffApplication, newName, err)
			}
			out[newName] = content

		default:
			original, ok := out[origName]
			if !ok {
				return nil, fmt.Errorf("%w: patch modifies %q which is absent", snapshot.ErrDiffApplication, origName)
			}
			patched, err := applyFileDiff(original, fd)
			if err != nil {
				return nil, fmt.Errorf("%w: modify %q: %v", snapshot.ErrDiffApplication, origName, err)
			}
			if newName != origName {
				delete(out, origName)
			}
			out[newName] = patched
		}
	}
	return out, nil
}

// stripDiffPrefix removes the conventional a/ and b/ path prefixes.
func stripDiffPrefix(name string) string {
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}

// newFileContent extracts the full content of a file created by a patch.
func newFileContent(fd *diff.FileDiff) ([]byte, error) {
	var sb strings.Builder
	noEOL := false
	for _, hunk := range fd.Hunks {
		body, hunkNoEOL := hunkLines(hunk)
		for _, line := range body {
			if len(line) == 0 {
				continue
			}
			switch line[0] {
			case '+':
				sb.WriteString(line[1:])
				sb.WriteString("\n")
			case '-', ' ':
				return nil, fmt.Errorf("unexpected %q line in creation hunk", string(line[0]))
			}
		}
		noEOL = noEOL || hunkNoEOL
	}
	if noEOL {
		return []byte(strings.TrimSuffix(sb.String(), "\n")), nil
	}
	return []byte(sb.String()), nil
}

// applyFileDiff patches one existing file.
//
// The walk mirrors hunk order with a forward cursor over the original lines.
// Context and deletion lines must match the original exactly; the hunk
// offsets must land inside the file.
func applyFileDiff(original []byte, fd *diff.FileDiff) ([]byte, error) {
	origHadEOL := len(original) > 0 && original[len(original)-1] == '\n'
	origLines := strings.Split(string(original), "\n")
	if origHadEOL {
		origLines = origLines[:len(origLines)-1]
	}

	var out []string
	cursor := 0
	newNoEOL := false

	for _, hunk := range fd.Hunks {
		start := int(hunk.OrigStartLine) - 1
		if hunk.OrigLines == 0 {
			// Pure insertion hunks anchor after the stated line.
			start = int(hunk.OrigStartLine)
		}
		if start < cursor || start > len(origLines) {
			return nil, fmt.Errorf("hunk @ -%d overlaps or exceeds file (%d lines)", hunk.OrigStartLine, len(origLines))
		}
		out = append(out, origLines[cursor:start]...)
		cursor = start

		body, noEOL := hunkLines(hunk)
		for _, line := range body {
			if len(line) == 0 {
				// A bare empty body line is an empty context line.
				line = " "
			}
			switch line[0] {
			case ' ':
				if cursor >= len(origLines) || origLines[cursor] != line[1:] {
					return nil, fmt.Errorf("context mismatch at line %d", cursor+1)
				}
				out = append(out, origLines[cursor])
				cursor++
			case '-':
				if cursor >= len(origLines) || origLines[cursor] != line[1:] {
					return nil, fmt.Errorf("deletion mismatch at line %d", cursor+1)
				}
				cursor++
			case '+':
				out = append(out, line[1:])
			default:
				return nil, fmt.Errorf("unrecognized hunk line prefix %q", string(line[0]))
			}
		}
		if noEOL {
			newNoEOL = true
		}
	}
	tailCopied := cursor < len(origLines)
	out = append(out, origLines[cursor:]...)

	result := strings.Join(out, "\n")
	if len(out) > 0 {
		// A copied tail keeps the original's final-newline state; content
		// ending inside a hunk keeps a newline unless the marker said not to.
		if tailCopied {
			if origHadEOL {
				result += "\n"
			}
		} else if !newNoEOL {
			result += "\n"
		}
	}
	return []byte(result), nil
}

// hunkLines splits a hunk body into prefixed lines. noEOL reports a
// "\ No newline at end of file" marker attached to the NEW side; markers
// following a deletion line describe the original and are dropped.
func hunkLines(hunk *diff.Hunk) (lines []string, noEOL bool) {
	raw := strings.Split(string(hunk.Body), "\n")
	if len(raw) > 0 && raw[len(raw)-1] == "" {
		raw = raw[:len(raw)-1]
	}
	prevPrefix := byte(0)
	for _, line := range raw {
		if strings.HasPrefix(line, `\`) {
			if prevPrefix == '+' || prevPrefix == ' ' {
				noEOL = true
			}
			continue
		}
		if len(line) > 0 {
			prevPrefix = line[0]
		} else {
			prevPrefix = ' '
		}
		lines = append(lines, line)
	}
	return lines, noEOL
}
