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
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultContextLines is the hunk context used when rendering unified
// patches for humans.
const DefaultContextLines = 3

// RenderUnified renders a classic unified patch (---/+++ headers, @@ hunks)
// for one file transition. Empty old content renders as a creation from
// /dev/null; empty new content with a non-empty old renders as a deletion.
func RenderUnified(path string, oldContent, newContent []byte, context int) (string, error) {
	if context <= 0 {
		context = DefaultContextLines
	}
	fromFile := "a/" + path
	toFile := "b/" + path
	a := splitLines(oldContent)
	b := splitLines(newContent)
	if len(a) == 0 {
		fromFile = "/dev/null"
	}
	if len(b) == 0 && len(a) > 0 {
		toFile = "/dev/null"
	}
	u := difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  context,
	}
	text, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return "", fmt.Errorf("render unified diff for %s: %w", path, err)
	}
	return text, nil
}

// Render renders a whole Diff as concatenated per-file unified patches,
// using base to materialize the old side of each operation. Operations keep
// their diff order.
func Render(base map[string][]byte, d *Diff, context int) (string, error) {
	if d.IsEmpty() {
		return "", nil
	}
	var sb strings.Builder
	for _, op := range d.Ops {
		var oldContent, newContent []byte
		switch op.Kind {
		case OpAdd:
			newContent = op.Content
		case OpRemove:
			oldContent = base[op.Path]
		case OpModify:
			oldContent = base[op.Path]
			if op.Full {
				newContent = op.Content
			} else {
				applied, err := applySegments(oldContent, op.Segments)
				if err != nil {
					return "", fmt.Errorf("materialize %s: %w", op.Path, err)
				}
				newContent = applied
			}
		}
		text, err := RenderUnified(op.Path, oldContent, newContent, context)
		if err != nil {
			return "", err
		}
		sb.WriteString(text)
		if text != "" && !strings.HasSuffix(text, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
