// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package e2e

import (
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

// runCLI executes the built binary with env overrides so every path
// stays inside the test's temp directory. Output is machine-format
// because the binary detects the non-TTY pipe.
func runCLI(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(cliBinary, args...)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func testEnv(t *testing.T) map[string]string {
	tmp := t.TempDir()
	return map[string]string{
		"REWIND_CONFIG":     filepath.Join(tmp, "rewind.yaml"),
		"REWIND_STORE_PATH": filepath.Join(tmp, "store"),
	}
}

var sessionIDPattern = regexp.MustCompile(`OK: Created session ([0-9a-f-]{36})`)

func TestIngestHistoryRevertFlow(t *testing.T) {
	env := testEnv(t)

	project := filepath.Join(t.TempDir(), "project")
	mustWrite(t, filepath.Join(project, "app.py"), "x = 1\n")
	mustWrite(t, filepath.Join(project, "lib", "util.py"), "def f():\n    return 1\n")

	out, err := runCLI(t, env, "ingest", project)
	if err != nil {
		t.Fatalf("ingest failed: %v\n%s", err, out)
	}
	m := sessionIDPattern.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no session id in ingest output:\n%s", out)
	}
	env["REWIND_SESSION"] = m[1]

	mustWrite(t, filepath.Join(project, "app.py"), "x = 2\n")
	out, err = runCLI(t, env, "ingest", project, "-d", "bump x")
	if err != nil {
		t.Fatalf("second ingest failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Captured v2") {
		t.Fatalf("expected v2 capture:\n%s", out)
	}

	out, err = runCLI(t, env, "history")
	if err != nil {
		t.Fatalf("history failed: %v\n%s", err, out)
	}
	for _, want := range []string{"Initial snapshot", "bump x"} {
		if !strings.Contains(out, want) {
			t.Errorf("history missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, env, "show", "--version", "2", "--diff")
	if err != nil {
		t.Fatalf("show failed: %v\n%s", err, out)
	}
	for _, want := range []string{"-x = 1", "+x = 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("diff missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, env, "revert", "1", "--yes")
	if err != nil {
		t.Fatalf("revert failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Reverted to v1 as new version v3") {
		t.Fatalf("unexpected revert output:\n%s", out)
	}

	out, err = runCLI(t, env, "history")
	if err != nil {
		t.Fatalf("history failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Reverted to version 1") {
		t.Errorf("history missing revert entry:\n%s", out)
	}

	out, err = runCLI(t, env, "sessions", "list")
	if err != nil {
		t.Fatalf("sessions list failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, env["REWIND_SESSION"]) {
		t.Errorf("sessions list missing %s:\n%s", env["REWIND_SESSION"], out)
	}
}

func TestApplyPatchFlow(t *testing.T) {
	env := testEnv(t)

	project := filepath.Join(t.TempDir(), "project")
	mustWrite(t, filepath.Join(project, "app.py"), "x = 1\n")

	out, err := runCLI(t, env, "ingest", project)
	if err != nil {
		t.Fatalf("ingest failed: %v\n%s", err, out)
	}
	m := sessionIDPattern.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no session id in ingest output:\n%s", out)
	}
	env["REWIND_SESSION"] = m[1]

	patchPath := filepath.Join(t.TempDir(), "fix.patch")
	mustWrite(t, patchPath, "--- a/app.py\n+++ b/app.py\n@@ -1,1 +1,1 @@\n-x = 1\n+x = 99\n")

	out, err = runCLI(t, env, "apply", patchPath, "-d", "hotfix")
	if err != nil {
		t.Fatalf("apply failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Applied patch as v2") {
		t.Fatalf("unexpected apply output:\n%s", out)
	}

	out, err = runCLI(t, env, "show", "--version", "2", "--files")
	if err != nil {
		t.Fatalf("show failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "app.py") {
		t.Errorf("inventory missing app.py:\n%s", out)
	}
}

func TestGCAndPruneSmoke(t *testing.T) {
	env := testEnv(t)

	project := filepath.Join(t.TempDir(), "project")
	mustWrite(t, filepath.Join(project, "app.py"), "x = 1\n")

	out, err := runCLI(t, env, "ingest", project)
	if err != nil {
		t.Fatalf("ingest failed: %v\n%s", err, out)
	}

	out, err = runCLI(t, env, "gc")
	if err != nil {
		t.Fatalf("gc failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "GC cycle complete") {
		t.Errorf("unexpected gc output:\n%s", out)
	}

	// The session is seconds old; nothing qualifies for pruning.
	out, err = runCLI(t, env, "sessions", "prune", "--older-than", "1h")
	if err != nil {
		t.Fatalf("prune failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "No sessions idle") {
		t.Errorf("unexpected prune output:\n%s", out)
	}

	out, err = runCLI(t, env, "sessions", "stats")
	if err != nil {
		t.Fatalf("stats failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "sessions   1") {
		t.Errorf("stats should count one session:\n%s", out)
	}
}
