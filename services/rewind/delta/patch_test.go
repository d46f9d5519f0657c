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
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianRewind/services/rewind/snapshot"
)

func TestApplyUnifiedModify(t *testing.T) {
	base := snapshot.FileSet{
		"app.py": []byte("import os\n\ndef main():\n    print(\"old\")\n    return 0\n"),
	}
	patch := `--- a/app.py
+++ b/app.py
@@ -1,5 +1,5 @@
 import os

 def main():
-    print("old")
+    print("new")
     return 0
`

	got, err := ApplyUnified(base, []byte(patch))
	if err != nil {
		t.Fatalf("ApplyUnified failed: %v", err)
	}
	want := "import os\n\ndef main():\n    print(\"new\")\n    return 0\n"
	if string(got["app.py"]) != want {
		t.Errorf("patched content:\n%q\nwant:\n%q", got["app.py"], want)
	}

	// Base set must be untouched.
	if string(base["app.py"]) == want {
		t.Errorf("ApplyUnified mutated the base set")
	}
}

func TestApplyUnifiedCreateAndDelete(t *testing.T) {
	base := snapshot.FileSet{"old.txt": []byte("going away\n")}
	patch := `--- /dev/null
+++ b/fresh.txt
@@ -0,0 +1,2 @@
+first line
+second line
--- a/old.txt
+++ /dev/null
@@ -1,1 +0,0 @@
-going away
`

	got, err := ApplyUnified(base, []byte(patch))
	if err != nil {
		t.Fatalf("ApplyUnified failed: %v", err)
	}
	if string(got["fresh.txt"]) != "first line\nsecond line\n" {
		t.Errorf("created file content = %q", got["fresh.txt"])
	}
	if _, ok := got["old.txt"]; ok {
		t.Errorf("deleted file still present")
	}
}

func TestApplyUnifiedContextMismatch(t *testing.T) {
	base := snapshot.FileSet{"app.py": []byte("completely different content\n")}
	patch := `--- a/app.py
+++ b/app.py
@@ -1,1 +1,1 @@
-what the patch expects
+replacement
`

	_, err := ApplyUnified(base, []byte(patch))
	if !errors.Is(err, snapshot.ErrDiffApplication) {
		t.Errorf("expected ErrDiffApplication on context mismatch, got %v", err)
	}
}

func TestApplyUnifiedMissingTarget(t *testing.T) {
	patch := `--- a/ghost.py
+++ b/ghost.py
@@ -1,1 +1,1 @@
-a
+b
`
	_, err := ApplyUnified(snapshot.FileSet{}, []byte(patch))
	if !errors.Is(err, snapshot.ErrDiffApplication) {
		t.Errorf("expected ErrDiffApplication for absent file, got %v", err)
	}
}

func TestApplyUnifiedGarbageInput(t *testing.T) {
	_, err := ApplyUnified(snapshot.FileSet{}, []byte("this is not a diff"))
	if !errors.Is(err, snapshot.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestApplyUnifiedRoundTripWithRender(t *testing.T) {
	// A patch rendered from a computed diff must apply back cleanly.
	prev := snapshot.FileSet{
		"lib.go": []byte("package lib\n\nfunc Old() int {\n\treturn 1\n}\n"),
		"doc.md": []byte("# Title\n\nBody text.\n"),
	}
	next := snapshot.FileSet{
		"lib.go": []byte("package lib\n\nfunc Old() int {\n\treturn 2\n}\n"),
		"doc.md": []byte("# Title\n\nBody text.\n"),
		"new.md": []byte("appendix\n"),
	}

	d := Compute(prev, next)
	patch, err := Render(prev, d, DefaultContextLines)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got, err := ApplyUnified(prev, []byte(patch))
	if err != nil {
		t.Fatalf("ApplyUnified of rendered patch failed: %v\npatch:\n%s", err, patch)
	}
	if !got.Equal(next) {
		t.Errorf("rendered patch did not reproduce target set\npatch:\n%s", patch)
	}
}

func TestRenderUnifiedShapes(t *testing.T) {
	t.Run("modification has headers and hunk", func(t *testing.T) {
		text, err := RenderUnified("f.txt", []byte("a\nb\n"), []byte("a\nc\n"), 3)
		if err != nil {
			t.Fatalf("RenderUnified failed: %v", err)
		}
		for _, want := range []string{"--- a/f.txt", "+++ b/f.txt", "@@", "-b", "+c"} {
			if !strings.Contains(text, want) {
				t.Errorf("patch missing %q:\n%s", want, text)
			}
		}
	})

	t.Run("creation uses dev null origin", func(t *testing.T) {
		text, err := RenderUnified("f.txt", nil, []byte("new\n"), 3)
		if err != nil {
			t.Fatalf("RenderUnified failed: %v", err)
		}
		if !strings.Contains(text, "--- /dev/null") {
			t.Errorf("creation patch missing /dev/null origin:\n%s", text)
		}
	})

	t.Run("deletion uses dev null target", func(t *testing.T) {
		text, err := RenderUnified("f.txt", []byte("old\n"), nil, 3)
		if err != nil {
			t.Fatalf("RenderUnified failed: %v", err)
		}
		if !strings.Contains(text, "+++ /dev/null") {
			t.Errorf("deletion patch missing /dev/null target:\n%s", text)
		}
	})
}
