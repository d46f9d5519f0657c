// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package delta computes and applies reversible diffs between file sets.
//
// A Diff is an ordered list of tagged per-file operations (add, remove,
// modify). Modify operations carry line-level segments produced by a
// sequence matcher over terminator-preserving line splits, so applying a
// diff reconstructs the target content byte-for-byte, including files with
// no trailing newline, CRLF line endings, or embedded binary runs.
//
// # Invariants
//
//   - Apply(A, Compute(A, B)) equals B exactly, for every pair of file sets.
//   - Compute(A, A) yields an empty diff; unchanged files are never encoded.
//   - Segment base ranges tile the base content; any gap, overlap, or hash
//     mismatch during Apply reports corruption instead of guessing.
//
// # Thread Safety
//
// Compute and Apply are pure functions. Diff values are safe to share after
// creation.
package delta

import (
	"bytes"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/AleutianAI/AleutianRewind/services/rewind/snapshot"
)

// OpKind tags a per-file operation.
type OpKind string

const (
	// OpAdd introduces a file absent from the base, carrying full content.
	OpAdd OpKind = "add"

	// OpRemove deletes a file present in the base.
	OpRemove OpKind = "remove"

	// OpModify rewrites a file present in both sets via line segments.
	OpModify OpKind = "modify"
)

// SegmentTag classifies one span of a modify operation.
type SegmentTag string

const (
	// SegCopy reuses base lines [BaseStart, BaseEnd).
	SegCopy SegmentTag = "copy"

	// SegDelete skips base lines [BaseStart, BaseEnd).
	SegDelete SegmentTag = "delete"

	// SegInsert emits Lines at the current position.
	SegInsert SegmentTag = "insert"

	// SegReplace skips base lines [BaseStart, BaseEnd) and emits Lines.
	SegReplace SegmentTag = "replace"
)

// Segment is one span of a modify delta. Line indices are zero-based and
// refer to the base content split with terminators preserved.
type Segment struct {
	Tag       SegmentTag `json:"tag"`
	BaseStart int        `json:"base_start,omitempty"`
	BaseEnd   int        `json:"base_end,omitempty"`
	Lines     []string   `json:"lines,omitempty"`
}

// FileOp is one tagged per-file operation.
//
// Add carries the full new content. Modify carries line segments plus the
// SHA256 of the expected result; the hash gates reconstruction. Content that
// is not valid UTF-8 cannot round-trip through JSON string lines, so such
// modifies set Full and carry the whole new content instead of segments.
// Remove carries the path only.
type FileOp struct {
	Kind        OpKind    `json:"op"`
	Path        string    `json:"path"`
	Content     []byte    `json:"content,omitempty"`
	Segments    []Segment `json:"segments,omitempty"`
	Full        bool      `json:"full,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
}

// Diff is an ordered operation list: adds, then modifies, then removes, each
// group in lexical path order. The ordering is deterministic so serialized
// diffs are byte-stable for identical inputs.
type Diff struct {
	Ops []FileOp `json:"ops"`
}

// IsEmpty reports whether the diff carries no operations.
func (d *Diff) IsEmpty() bool {
	return d == nil || len(d.Ops) == 0
}

// ChangedPaths returns every path the diff touches, in lexical order.
func (d *Diff) ChangedPaths() []string {
	if d == nil {
		return nil
	}
	paths := make([]string, 0, len(d.Ops))
	for _, op := range d.Ops {
		paths = append(paths, op.Path)
	}
	sort.Strings(paths)
	return paths
}

// Stats returns the operation counts by kind.
func (d *Diff) Stats() (adds, modifies, removes int) {
	if d == nil {
		return 0, 0, 0
	}
	for _, op := range d.Ops {
		switch op.Kind {
		case OpAdd:
			adds++
		case OpModify:
			modifies++
		case OpRemove:
			removes++
		}
	}
	return adds, modifies, removes
}

// Compute derives the minimal operation list turning prev into next.
//
// Files only in next become adds with full content. Files only in prev
// become removes. Files in both with differing bytes become modifies;
// identical files produce no operation.
func Compute(prev, next snapshot.FileSet) *Diff {
	d := &Diff{}

	var added, modified, removed []string
	for path := range next {
		if _, ok := prev[path]; !ok {
			added = append(added, path)
		}
	}
	for path, prevContent := range prev {
		nextContent, ok := next[path]
		if !ok {
			removed = append(removed, path)
			continue
		}
		if !bytes.Equal(prevContent, nextContent) {
			modified = append(modified, path)
		}
	}
	sort.Strings(added)
	sort.Strings(modified)
	sort.Strings(removed)

	for _, path := range added {
		content := next[path]
		dup := make([]byte, len(content))
		copy(dup, content)
		d.Ops = append(d.Ops, FileOp{
			Kind:        OpAdd,
			Path:        path,
			Content:     dup,
			ContentHash: snapshot.HashContent(content),
		})
	}
	for _, path := range modified {
		op := FileOp{
			Kind:        OpModify,
			Path:        path,
			ContentHash: snapshot.HashContent(next[path]),
		}
		if utf8.Valid(prev[path]) && utf8.Valid(next[path]) {
			op.Segments = diffSegments(prev[path], next[path])
		} else {
			op.Full = true
			op.Content = make([]byte, len(next[path]))
			copy(op.Content, next[path])
		}
		d.Ops = append(d.Ops, op)
	}
	for _, path := range removed {
		d.Ops = append(d.Ops, FileOp{Kind: OpRemove, Path: path})
	}
	return d
}

// Apply reconstructs the target file set from base plus diff.
//
// Any structural mismatch between the diff and the base (add over an
// existing file, modify or remove of a missing file, segment ranges that do
// not tile the base, or a reconstructed file whose hash differs from the
// recorded one) returns an error wrapping snapshot.ErrDiffApplication. The
// base is never mutated.
func Apply(base snapshot.FileSet, d *Diff) (snapshot.FileSet, error) {
	out := base.Clone()
	if d == nil {
		return out, nil
	}
	for _, op := range d.Ops {
		switch op.Kind {
		case OpAdd:
			if _, exists := out[op.Path]; exists {
				return nil, fmt.Errorf("%w: add %q over existing file", snapshot.ErrDiffApplication, op.Path)
			}
			content := make([]byte, len(op.Content))
			copy(content, op.Content)
			if op.ContentHash != "" && snapshot.HashContent(content) != op.ContentHash {
				return nil, fmt.Errorf("%w: add %q content hash mismatch", snapshot.ErrDiffApplication, op.Path)
			}
			out[op.Path] = content

		case OpModify:
			prevContent, exists := out[op.Path]
			if !exists {
				return nil, fmt.Errorf("%w: modify %q missing from base", snapshot.ErrDiffApplication, op.Path)
			}
			var next []byte
			if op.Full {
				next = make([]byte, len(op.Content))
				copy(next, op.Content)
			} else {
				applied, err := applySegments(prevContent, op.Segments)
				if err != nil {
					return nil, fmt.Errorf("%w: modify %q: %v", snapshot.ErrDiffApplication, op.Path, err)
				}
				next = applied
			}
			if op.ContentHash != "" && snapshot.HashContent(next) != op.ContentHash {
				return nil, fmt.Errorf("%w: modify %q reconstructed content hash mismatch", snapshot.ErrDiffApplication, op.Path)
			}
			out[op.Path] = next

		case OpRemove:
			if _, exists := out[op.Path]; !exists {
				return nil, fmt.Errorf("%w: remove %q missing from base", snapshot.ErrDiffApplication, op.Path)
			}
			delete(out, op.Path)

		default:
			return nil, fmt.Errorf("%w: unknown op kind %q", snapshot.ErrDiffApplication, op.Kind)
		}
	}
	return out, nil
}

// Invert returns the diff that undoes d relative to base, i.e.
// Apply(Apply(base, d), Invert(base, d)) == base.
func Invert(base snapshot.FileSet, d *Diff) (*Diff, error) {
	target, err := Apply(base, d)
	if err != nil {
		return nil, err
	}
	return Compute(target, base), nil
}

// diffSegments produces the segment list for one modified file.
func diffSegments(prev, next []byte) []Segment {
	prevLines := splitLines(prev)
	nextLines := splitLines(next)

	matcher := difflib.NewMatcher(prevLines, nextLines)
	var segs []Segment
	for _, opc := range matcher.GetOpCodes() {
		switch opc.Tag {
		case 'e':
			segs = append(segs, Segment{Tag: SegCopy, BaseStart: opc.I1, BaseEnd: opc.I2})
		case 'd':
			segs = append(segs, Segment{Tag: SegDelete, BaseStart: opc.I1, BaseEnd: opc.I2})
		case 'i':
			segs = append(segs, Segment{
				Tag:       SegInsert,
				BaseStart: opc.I1,
				BaseEnd:   opc.I1,
				Lines:     append([]string(nil), nextLines[opc.J1:opc.J2]...),
			})
		case 'r':
			segs = append(segs, Segment{
				Tag:       SegReplace,
				BaseStart: opc.I1,
				BaseEnd:   opc.I2,
				Lines:     append([]string(nil), nextLines[opc.J1:opc.J2]...),
			})
		}
	}
	return segs
}

// applySegments materializes the new content for one modify operation.
//
// Segments that consume base lines must tile [0, len(base)) contiguously and
// in order; inserts consume nothing. Violations report the offending span.
func applySegments(prev []byte, segs []Segment) ([]byte, error) {
	prevLines := splitLines(prev)
	cursor := 0
	var out bytes.Buffer
	out.Grow(len(prev))

	for _, seg := range segs {
		switch seg.Tag {
		case SegCopy, SegDelete, SegReplace:
			if seg.BaseStart != cursor || seg.BaseEnd < seg.BaseStart || seg.BaseEnd > len(prevLines) {
				return nil, fmt.Errorf("segment %s [%d,%d) misaligned at line %d of %d",
					seg.Tag, seg.BaseStart, seg.BaseEnd, cursor, len(prevLines))
			}
			if seg.Tag == SegCopy {
				for _, line := range prevLines[seg.BaseStart:seg.BaseEnd] {
					out.WriteString(line)
				}
			}
			cursor = seg.BaseEnd
		case SegInsert:
			if seg.BaseStart != cursor {
				return nil, fmt.Errorf("insert segment anchored at %d, cursor at %d", seg.BaseStart, cursor)
			}
		default:
			return nil, fmt.Errorf("unknown segment tag %q", seg.Tag)
		}
		if seg.Tag == SegInsert || seg.Tag == SegReplace {
			for _, line := range seg.Lines {
				out.WriteString(line)
			}
		}
	}
	if cursor != len(prevLines) {
		return nil, fmt.Errorf("segments cover %d of %d base lines", cursor, len(prevLines))
	}
	return out.Bytes(), nil
}

// splitLines splits content into lines with terminators preserved, so that
// joining the pieces reproduces the input byte-for-byte. A file without a
// trailing newline yields a final element without one; empty content yields
// no lines.
func splitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			lines = append(lines, string(content[start:i+1]))
			start = i + 1
		}
	}
	if start < len(content) {
		lines = append(lines, string(content[start:]))
	}
	return lines
}
