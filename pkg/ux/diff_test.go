// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"strings"
	"testing"
)

const sampleDiff = `--- a/calc.py
+++ b/calc.py
@@ -1,3 +1,3 @@
 def add(a, b):
-    return a - b
+    return a + b
\ No newline at end of file`

func TestColorizeDiff_MachineModeUnchanged(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	if got := ColorizeDiff(sampleDiff); got != sampleDiff {
		t.Errorf("machine mode must not alter the diff\ngot:  %q\nwant: %q", got, sampleDiff)
	}
}

func TestColorizeDiff_PreservesContent(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	got := ColorizeDiff(sampleDiff)

	// Styling may add escape codes but every original line's text survives.
	for _, line := range strings.Split(sampleDiff, "\n") {
		if !strings.Contains(got, strings.TrimRight(line, " ")) {
			t.Errorf("expected line %q in colorized output", line)
		}
	}
}

func TestColorizeDiff_PreservesLineCount(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	got := ColorizeDiff(sampleDiff)

	want := len(strings.Split(sampleDiff, "\n"))
	if n := len(strings.Split(got, "\n")); n != want {
		t.Errorf("line count changed: got %d, want %d", n, want)
	}
}

func TestColorizeDiff_Empty(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	if got := ColorizeDiff(""); got != "" {
		t.Errorf("expected empty output for empty diff, got %q", got)
	}
}
