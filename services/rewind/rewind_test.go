// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rewind

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRewind/services/rewind/snapshot"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	st, err := Open(context.Background(), Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func files(pairs ...string) snapshot.FileSet {
	fs := snapshot.FileSet{}
	for i := 0; i+1 < len(pairs); i += 2 {
		fs[pairs[i]] = []byte(pairs[i+1])
	}
	return fs
}

// ===== Open / Close =====

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.ErrorIs(t, err, snapshot.ErrInvalidInput)
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	ctx := context.Background()

	cfg := DefaultConfig(dir)
	st, err := Open(ctx, cfg)
	require.NoError(t, err)

	v1, err := st.Submit(ctx, "", files("a.py", "x = 1\n"), "")
	require.NoError(t, err)
	_, err = st.Submit(ctx, v1.SessionID, files("a.py", "x = 2\n"), "bump")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	// A fresh handle over the same directory serves the full history from
	// the durable tier alone.
	st2, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer st2.Close()

	hist, err := st2.History(ctx, v1.SessionID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "Initial snapshot", hist[0].Description)
	assert.Equal(t, "bump", hist[1].Description)

	got, err := st2.CurrentSnapshot(ctx, v1.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []byte("x = 2\n"), got["a.py"])
}

func TestClose_Idempotent(t *testing.T) {
	st, err := Open(context.Background(), Config{InMemory: true})
	require.NoError(t, err)

	require.NoError(t, st.Close())
	assert.NoError(t, st.Close())
}

// ===== Submit =====

func TestSubmit_CreatesSessionWhenIDEmpty(t *testing.T) {
	st := newTestCoordinator(t)
	ctx := context.Background()

	v, err := st.Submit(ctx, "", files("main.go", "package main\n"), "")
	require.NoError(t, err)
	assert.NotEmpty(t, v.SessionID)
	assert.Equal(t, 1, v.Number)
	assert.Nil(t, v.Diff, "version 1 stores no diff")
	assert.Equal(t, "Initial snapshot", v.Description)

	sess, err := st.Session(ctx, v.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Current)
}

func TestSubmit_UpdatesExistingSession(t *testing.T) {
	st := newTestCoordinator(t)
	ctx := context.Background()

	v1, err := st.Submit(ctx, "", files("a.py", "x = 1\n"), "")
	require.NoError(t, err)

	v2, err := st.Submit(ctx, v1.SessionID, files("a.py", "x = 1\n", "b.py", "y = 1\n"), "add b")
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Number)
	assert.Equal(t, v1.SessionID, v2.SessionID)
	assert.Equal(t, 1, v2.ChangedFiles)
	assert.NotNil(t, v2.Diff)

	hist, err := st.History(ctx, v1.SessionID)
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}

func TestSubmit_UnknownSession(t *testing.T) {
	st := newTestCoordinator(t)

	_, err := st.Submit(context.Background(), "no-such-session", files("a.py", "x\n"), "")
	assert.ErrorIs(t, err, snapshot.ErrSessionNotFound)

	var opErr *snapshot.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "submit", opErr.Op)
	assert.Equal(t, "no-such-session", opErr.SessionID)
}

// ===== Ingest / Revert round trip =====

func TestIngestRevert_RoundTrip(t *testing.T) {
	st := newTestCoordinator(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, files("a.py", "x = 1\n"), "")
	require.NoError(t, err)

	_, err = st.Ingest(ctx, sess.ID, files("a.py", "x = 1\n", "b.py", "y = 2\n"), "add b.py")
	require.NoError(t, err)

	both, err := st.CurrentSnapshot(ctx, sess.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.py", "b.py"}, both.Paths())

	v3, err := st.Revert(ctx, sess.ID, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Number)
	assert.Equal(t, 1, v3.RevertedFrom)
	assert.Equal(t, "Reverted to version 1", v3.Description)

	restored, err := st.CurrentSnapshot(ctx, sess.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.py"}, restored.Paths())
	assert.Equal(t, []byte("x = 1\n"), restored["a.py"])

	hist, err := st.History(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, hist, 3, "revert appends, never rewrites")
}

func TestRevert_OutOfRangeCarriesContext(t *testing.T) {
	st := newTestCoordinator(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, files("a.py", "x\n"), "")
	require.NoError(t, err)

	_, err = st.Revert(ctx, sess.ID, 7, "")
	assert.ErrorIs(t, err, snapshot.ErrInvalidVersion)

	var opErr *snapshot.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "revert", opErr.Op)
	assert.Equal(t, 7, opErr.Version)
}

// ===== ApplyPatch =====

func TestApplyPatch_EndToEnd(t *testing.T) {
	st := newTestCoordinator(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, files("calc.py", "def add(a, b):\n    return a - b\n"), "")
	require.NoError(t, err)

	patch := []byte(`--- a/calc.py
+++ b/calc.py
@@ -1,2 +1,2 @@
 def add(a, b):
-    return a - b
+    return a + b
`)
	v, err := st.ApplyPatch(ctx, sess.ID, patch, "fix add")
	require.NoError(t, err)
	assert.Equal(t, 2, v.Number)

	got, err := st.CurrentSnapshot(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("def add(a, b):\n    return a + b\n"), got["calc.py"])
}

func TestApplyPatch_StaleContext(t *testing.T) {
	st := newTestCoordinator(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, files("a.py", "x = 2\n"), "")
	require.NoError(t, err)

	// Patch built against content the session no longer has.
	stale := []byte(`--- a/a.py
+++ b/a.py
@@ -1,1 +1,1 @@
-x = 1
+x = 3
`)
	_, err = st.ApplyPatch(ctx, sess.ID, stale, "")
	assert.ErrorIs(t, err, snapshot.ErrDiffApplication)
}

// ===== RenderDiff =====

func TestRenderDiff_VersionChanges(t *testing.T) {
	st := newTestCoordinator(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, files("a.py", "x = 1\n"), "")
	require.NoError(t, err)
	_, err = st.Ingest(ctx, sess.ID, files("a.py", "x = 2\n", "b.py", "y = 1\n"), "")
	require.NoError(t, err)

	text, err := st.RenderDiff(ctx, sess.ID, 2, 0)
	require.NoError(t, err)
	assert.Contains(t, text, "--- a/a.py")
	assert.Contains(t, text, "+++ b/a.py")
	assert.Contains(t, text, "-x = 1")
	assert.Contains(t, text, "+x = 2")
	assert.Contains(t, text, "--- /dev/null")
	assert.Contains(t, text, "+++ b/b.py")
	assert.Contains(t, text, "+y = 1")

	// Second render is served from the cached blob and must match.
	again, err := st.RenderDiff(ctx, sess.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, text, again)
}

func TestRenderDiff_FirstVersionIsAllCreations(t *testing.T) {
	st := newTestCoordinator(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, files("a.py", "x = 1\n"), "")
	require.NoError(t, err)

	text, err := st.RenderDiff(ctx, sess.ID, 1, 0)
	require.NoError(t, err)
	assert.Contains(t, text, "--- /dev/null")
	assert.Contains(t, text, "+++ b/a.py")
	assert.Contains(t, text, "+x = 1")
}

func TestRenderDiff_UnknownVersion(t *testing.T) {
	st := newTestCoordinator(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, files("a.py", "x\n"), "")
	require.NoError(t, err)

	_, err = st.RenderDiff(ctx, sess.ID, 99, 0)
	assert.ErrorIs(t, err, snapshot.ErrInvalidVersion)
}

// ===== Records =====

func TestSnapshot_ExposesMetadata(t *testing.T) {
	st := newTestCoordinator(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, files(
		"app.py", "import os\n\ndef main():\n    if os.name:\n        return 1\n",
		"README.md", "# demo\n",
	), "")
	require.NoError(t, err)

	snap, err := st.Snapshot(ctx, sess.ID, 1)
	require.NoError(t, err)
	require.Len(t, snap.Meta, 2)

	app := snap.Meta["app.py"]
	assert.Equal(t, "python", app.Language)
	assert.NotNil(t, app.Complexity)
	assert.Equal(t, []string{"os"}, app.Dependencies)

	readme := snap.Meta["README.md"]
	assert.Nil(t, readme.Complexity, "no analyzer for markdown")
	assert.False(t, readme.AnalysisIncomplete)
}

func TestStats_CountsRecords(t *testing.T) {
	st := newTestCoordinator(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, files("a.py", "x\n"), "")
	require.NoError(t, err)
	_, err = st.Ingest(ctx, sess.ID, files("a.py", "y\n"), "")
	require.NoError(t, err)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Sessions)
	assert.Equal(t, int64(2), stats.Versions)
	assert.Equal(t, int64(2), stats.Snapshots)
	require.NotNil(t, stats.Cache)
}

// ===== Lifecycle =====

func TestCloseSession_BecomesReadOnly(t *testing.T) {
	st := newTestCoordinator(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, files("a.py", "x\n"), "")
	require.NoError(t, err)
	require.NoError(t, st.CloseSession(ctx, sess.ID))

	_, err = st.Ingest(ctx, sess.ID, files("a.py", "y\n"), "")
	assert.ErrorIs(t, err, snapshot.ErrSessionClosed)

	_, err = st.CurrentSnapshot(ctx, sess.ID)
	assert.NoError(t, err, "closed sessions stay readable")
}

func TestDeleteSession_RemovesEverything(t *testing.T) {
	st := newTestCoordinator(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, files("a.py", "x\n"), "")
	require.NoError(t, err)
	_, err = st.Ingest(ctx, sess.ID, files("a.py", "y\n"), "")
	require.NoError(t, err)

	n, err := st.DeleteSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = st.Session(ctx, sess.ID)
	assert.ErrorIs(t, err, snapshot.ErrSessionNotFound)
}

func TestPruneSessions_RejectsNonPositiveCutoff(t *testing.T) {
	st := newTestCoordinator(t)

	_, err := st.PruneSessions(context.Background(), 0)
	assert.ErrorIs(t, err, snapshot.ErrInvalidInput)
}

func TestRunGC_InMemoryNoop(t *testing.T) {
	st := newTestCoordinator(t)
	assert.NoError(t, st.RunGC())
}

// ===== Concurrency =====

func TestConcurrentSubmits_SameSession(t *testing.T) {
	st := newTestCoordinator(t)
	ctx := context.Background()

	v1, err := st.Submit(ctx, "", files("a.py", "x = 0\n"), "")
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = st.Submit(ctx, v1.SessionID,
				files("a.py", fmt.Sprintf("x = %d\n", n)), "")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	hist, err := st.History(ctx, v1.SessionID)
	require.NoError(t, err)
	require.Len(t, hist, writers+1)
	for i, h := range hist {
		assert.Equal(t, i+1, h.Number, "version numbers stay contiguous")
	}
}
