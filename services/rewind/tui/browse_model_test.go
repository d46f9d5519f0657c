// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AleutianAI/AleutianRewind/services/rewind/snapshot"
)

func testVersions() []snapshot.VersionSummary {
	now := time.Now().UnixMilli()
	return []snapshot.VersionSummary{
		{Number: 1, SnapshotID: "snap-1", Description: "Initial snapshot", CreatedAt: now - 3*60*60*1000, ChangedFiles: 3},
		{Number: 2, SnapshotID: "snap-2", Description: "fix parser", CreatedAt: now - 60*60*1000, ChangedFiles: 1},
		{Number: 3, SnapshotID: "snap-3", Description: "Reverted to version 1", CreatedAt: now - 5*60*1000, ChangedFiles: 2, RevertedFrom: 1},
	}
}

// fakeService is an in-memory Service with canned responses.
type fakeService struct {
	versions  []snapshot.VersionSummary
	current   int
	diffs     map[int]string
	snaps     map[int]*snapshot.Snapshot
	revertErr error
	reverted  []int
}

func (f *fakeService) History(_ context.Context, _ string) ([]snapshot.VersionSummary, error) {
	return f.versions, nil
}

func (f *fakeService) Session(_ context.Context, sessionID string) (snapshot.Session, error) {
	return snapshot.Session{ID: sessionID, Current: f.current}, nil
}

func (f *fakeService) RenderDiff(_ context.Context, _ string, number, _ int) (string, error) {
	text, ok := f.diffs[number]
	if !ok {
		return "", fmt.Errorf("no diff for v%d", number)
	}
	return text, nil
}

func (f *fakeService) Snapshot(_ context.Context, _ string, number int) (*snapshot.Snapshot, error) {
	snap, ok := f.snaps[number]
	if !ok {
		return nil, fmt.Errorf("no snapshot for v%d", number)
	}
	return snap, nil
}

func (f *fakeService) Revert(_ context.Context, sessionID string, target int, _ string) (*snapshot.Version, error) {
	if f.revertErr != nil {
		return nil, f.revertErr
	}
	f.reverted = append(f.reverted, target)
	created := f.current + 1
	f.versions = append(f.versions, snapshot.VersionSummary{
		Number:       created,
		Description:  fmt.Sprintf("Reverted to version %d", target),
		CreatedAt:    time.Now().UnixMilli(),
		RevertedFrom: target,
	})
	f.current = created
	return &snapshot.Version{Number: created, SessionID: sessionID, RevertedFrom: target}, nil
}

func newTestService() *fakeService {
	cx := 2.0
	return &fakeService{
		versions: testVersions(),
		current:  3,
		diffs: map[int]string{
			1: "--- /dev/null\n+++ b/a.py\n@@ -0,0 +1 @@\n+x = 1\n",
			2: "--- a/a.py\n+++ b/a.py\n@@ -1 +1 @@\n-x = 1\n+x = 2\n",
			3: "--- a/a.py\n+++ b/a.py\n@@ -1 +1 @@\n-x = 2\n+x = 1\n",
		},
		snaps: map[int]*snapshot.Snapshot{
			3: {
				ID:    "snap-3",
				Files: snapshot.FileSet{"a.py": []byte("x = 1\n")},
				Meta: map[string]snapshot.Metadata{
					"a.py": {
						Language:   "python",
						SizeBytes:  6,
						Lines:      snapshot.LineStats{Total: 1, Code: 1},
						Complexity: &cx,
					},
				},
			},
		},
	}
}

// newTestModel builds a ready model over the fake service's history.
func newTestModel(t *testing.T, svc *fakeService) BrowseModel {
	t.Helper()
	m := NewBrowseModel(svc, "sess-1234abcd", svc.versions, svc.current, DefaultBrowseConfig())
	nm, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	model, ok := nm.(BrowseModel)
	if !ok {
		t.Fatalf("Update returned %T, want BrowseModel", nm)
	}
	return model
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

// press routes one key through Update and returns the new model and command.
func press(t *testing.T, m BrowseModel, msg tea.Msg) (BrowseModel, tea.Cmd) {
	t.Helper()
	nm, cmd := m.Update(msg)
	model, ok := nm.(BrowseModel)
	if !ok {
		t.Fatalf("Update returned %T, want BrowseModel", nm)
	}
	return model, cmd
}

func TestNewBrowseModel_StartsAtCurrent(t *testing.T) {
	svc := newTestService()
	model := NewBrowseModel(svc, "sess-1", svc.versions, svc.current, DefaultBrowseConfig())

	if model.viewMode != ViewHistory {
		t.Errorf("viewMode = %v, want ViewHistory", model.viewMode)
	}
	if model.cursor != 2 {
		t.Errorf("cursor = %d, want 2 (index of current v3)", model.cursor)
	}
}

func TestNewBrowseModel_InitialVersionSelectsCursor(t *testing.T) {
	svc := newTestService()
	cfg := DefaultBrowseConfig()
	cfg.InitialVersion = 1

	model := NewBrowseModel(svc, "sess-1", svc.versions, svc.current, cfg)
	if model.cursor != 0 {
		t.Errorf("cursor = %d, want 0 (index of v1)", model.cursor)
	}

	// Unknown numbers fall back to the newest version.
	cfg.InitialVersion = 99
	model = NewBrowseModel(svc, "sess-1", svc.versions, svc.current, cfg)
	if model.cursor != 2 {
		t.Errorf("cursor = %d, want 2 for unknown initial version", model.cursor)
	}
}

func TestWindowSize_InitializesViewport(t *testing.T) {
	svc := newTestService()
	model := newTestModel(t, svc)

	if !model.ready {
		t.Fatal("model should be ready after WindowSizeMsg")
	}
	if model.viewport.Width != 100 {
		t.Errorf("viewport width = %d, want 100", model.viewport.Width)
	}
}

func TestCursorNavigation_Clamps(t *testing.T) {
	svc := newTestService()
	model := newTestModel(t, svc)

	// Start at v3 (index 2), move up twice to index 0.
	model, _ = press(t, model, keyRune('k'))
	model, _ = press(t, model, keyRune('k'))
	if model.cursor != 0 {
		t.Errorf("cursor = %d, want 0", model.cursor)
	}

	// Moving past the top stays at 0.
	model, _ = press(t, model, keyRune('k'))
	if model.cursor != 0 {
		t.Errorf("cursor = %d, want 0 after extra k", model.cursor)
	}

	model, _ = press(t, model, keyRune('j'))
	if model.cursor != 1 {
		t.Errorf("cursor = %d, want 1", model.cursor)
	}

	model, _ = press(t, model, keyRune('G'))
	if model.cursor != 2 {
		t.Errorf("cursor = %d, want 2 after G", model.cursor)
	}

	model, _ = press(t, model, keyRune('j'))
	if model.cursor != 2 {
		t.Errorf("cursor = %d, want 2 after extra j", model.cursor)
	}

	model, _ = press(t, model, keyRune('g'))
	if model.cursor != 0 {
		t.Errorf("cursor = %d, want 0 after g", model.cursor)
	}
}

func TestEnter_LoadsDiffForSelected(t *testing.T) {
	svc := newTestService()
	model := newTestModel(t, svc)

	model, cmd := press(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter should return a load command")
	}
	if !model.loading {
		t.Error("model should be loading while the diff is fetched")
	}

	msg := cmd()
	loaded, ok := msg.(diffLoadedMsg)
	if !ok {
		t.Fatalf("command returned %T, want diffLoadedMsg", msg)
	}
	if loaded.number != 3 {
		t.Errorf("loaded diff for v%d, want v3", loaded.number)
	}

	model, _ = press(t, model, msg)
	if model.viewMode != ViewDiff {
		t.Errorf("viewMode = %v, want ViewDiff", model.viewMode)
	}
	if model.loading {
		t.Error("loading should be cleared after the diff arrives")
	}
	if !strings.Contains(model.diffText, "+x = 1") {
		t.Errorf("diffText missing added line: %q", model.diffText)
	}
}

func TestEnter_OnEmptyHistory(t *testing.T) {
	svc := &fakeService{}
	model := NewBrowseModel(svc, "sess-1", nil, 0, DefaultBrowseConfig())
	nm, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model = nm.(BrowseModel)

	model, cmd := press(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("enter on empty history should not produce a command")
	}
	if model.viewMode != ViewHistory {
		t.Errorf("viewMode = %v, want ViewHistory", model.viewMode)
	}
}

func TestTab_TogglesDiffAndFiles(t *testing.T) {
	svc := newTestService()
	model := newTestModel(t, svc)

	// Open the diff for v3 first.
	model, cmd := press(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	model, _ = press(t, model, cmd())

	// Tab switches to the file inventory.
	model, cmd = press(t, model, tea.KeyMsg{Type: tea.KeyTab})
	if cmd == nil {
		t.Fatal("tab from diff view should load files")
	}
	msg := cmd()
	if _, ok := msg.(filesLoadedMsg); !ok {
		t.Fatalf("command returned %T, want filesLoadedMsg", msg)
	}
	model, _ = press(t, model, msg)
	if model.viewMode != ViewFiles {
		t.Errorf("viewMode = %v, want ViewFiles", model.viewMode)
	}

	// Tab back reuses the cached diff without a new command.
	model, cmd = press(t, model, tea.KeyMsg{Type: tea.KeyTab})
	if cmd != nil {
		t.Error("tab back to a cached diff should not reload it")
	}
	if model.viewMode != ViewDiff {
		t.Errorf("viewMode = %v, want ViewDiff", model.viewMode)
	}
}

func TestEsc_ReturnsToHistory(t *testing.T) {
	svc := newTestService()
	model := newTestModel(t, svc)

	model, cmd := press(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	model, _ = press(t, model, cmd())
	if model.viewMode != ViewDiff {
		t.Fatalf("viewMode = %v, want ViewDiff", model.viewMode)
	}

	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyEsc})
	if model.viewMode != ViewHistory {
		t.Errorf("viewMode = %v, want ViewHistory after esc", model.viewMode)
	}
}

func TestStepVersion_BoundsSafe(t *testing.T) {
	svc := newTestService()
	model := newTestModel(t, svc)

	model, cmd := press(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	model, _ = press(t, model, cmd())

	// Already at the newest version: n is a no-op.
	model, cmd = press(t, model, keyRune('n'))
	if cmd != nil {
		t.Error("n at the newest version should not produce a command")
	}
	if model.cursor != 2 {
		t.Errorf("cursor = %d, want 2", model.cursor)
	}

	// p steps to the older version and reloads the diff.
	model, cmd = press(t, model, keyRune('p'))
	if cmd == nil {
		t.Fatal("p should load the previous version's diff")
	}
	msg := cmd()
	loaded, ok := msg.(diffLoadedMsg)
	if !ok {
		t.Fatalf("command returned %T, want diffLoadedMsg", msg)
	}
	if loaded.number != 2 {
		t.Errorf("loaded diff for v%d, want v2", loaded.number)
	}
	if model.cursor != 1 {
		t.Errorf("cursor = %d, want 1", model.cursor)
	}
}

func TestRevert_OnCurrentIsRefused(t *testing.T) {
	svc := newTestService()
	model := newTestModel(t, svc)

	model, cmd := press(t, model, keyRune('r'))
	if cmd != nil {
		t.Error("reverting to the current version should not produce a command")
	}
	if model.showConfirm {
		t.Error("no confirmation should open for a no-op revert")
	}
	if !strings.Contains(model.status, "nothing to revert") {
		t.Errorf("status = %q, want a nothing-to-revert notice", model.status)
	}
}

func TestRevert_ConfirmFlow(t *testing.T) {
	svc := newTestService()
	model := newTestModel(t, svc)

	// Select v1 and request a revert.
	model, _ = press(t, model, keyRune('g'))
	model, cmd := press(t, model, keyRune('r'))
	if cmd != nil {
		t.Fatal("revert with confirmation should not run immediately")
	}
	if !model.showConfirm {
		t.Fatal("confirmation prompt should be open")
	}

	// Type "yes" and confirm.
	for _, r := range "yes" {
		model, _ = press(t, model, keyRune(r))
	}
	if model.confirmInput != "yes" {
		t.Fatalf("confirmInput = %q, want \"yes\"", model.confirmInput)
	}

	model, cmd = press(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("confirming should produce the revert command")
	}
	if model.showConfirm {
		t.Error("confirmation prompt should close on enter")
	}

	msg := cmd()
	done, ok := msg.(revertDoneMsg)
	if !ok {
		t.Fatalf("command returned %T, want revertDoneMsg", msg)
	}
	if done.action.Target != 1 || done.action.Created != 4 {
		t.Errorf("revert action = %+v, want target 1 created 4", done.action)
	}

	// The done message records the revert and schedules a history reload.
	model, cmd = press(t, model, msg)
	if !strings.Contains(model.status, "reverted to v1") {
		t.Errorf("status = %q, want revert notice", model.status)
	}
	if cmd == nil {
		t.Fatal("revertDoneMsg should schedule a history reload")
	}

	model, _ = press(t, model, cmd())
	if model.current != 4 {
		t.Errorf("current = %d, want 4 after reload", model.current)
	}
	if len(model.versions) != 4 {
		t.Errorf("len(versions) = %d, want 4", len(model.versions))
	}
	if model.cursor != 3 {
		t.Errorf("cursor = %d, want 3 (index of new current)", model.cursor)
	}

	result := model.Result()
	if len(result.Reverts) != 1 || result.Reverts[0] != (RevertAction{Target: 1, Created: 4}) {
		t.Errorf("Result().Reverts = %+v, want one revert of v1 -> v4", result.Reverts)
	}
}

func TestRevert_WrongConfirmInputCancels(t *testing.T) {
	svc := newTestService()
	model := newTestModel(t, svc)

	model, _ = press(t, model, keyRune('g'))
	model, _ = press(t, model, keyRune('r'))
	for _, r := range "no" {
		model, _ = press(t, model, keyRune(r))
	}

	model, cmd := press(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("wrong confirmation input should not run the revert")
	}
	if model.showConfirm {
		t.Error("confirmation prompt should close")
	}
	if len(svc.reverted) != 0 {
		t.Errorf("reverted = %v, want none", svc.reverted)
	}
}

func TestRevert_EscCancelsConfirm(t *testing.T) {
	svc := newTestService()
	model := newTestModel(t, svc)

	model, _ = press(t, model, keyRune('g'))
	model, _ = press(t, model, keyRune('r'))
	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyEsc})

	if model.showConfirm {
		t.Error("esc should close the confirmation prompt")
	}
	if len(svc.reverted) != 0 {
		t.Errorf("reverted = %v, want none", svc.reverted)
	}
}

func TestRevert_BackspaceEditsConfirmInput(t *testing.T) {
	svc := newTestService()
	model := newTestModel(t, svc)

	model, _ = press(t, model, keyRune('g'))
	model, _ = press(t, model, keyRune('r'))
	for _, r := range "yex" {
		model, _ = press(t, model, keyRune(r))
	}
	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyBackspace})
	model, _ = press(t, model, keyRune('s'))

	if model.confirmInput != "yes" {
		t.Errorf("confirmInput = %q, want \"yes\"", model.confirmInput)
	}
}

func TestRevert_WithoutConfirmation(t *testing.T) {
	svc := newTestService()
	cfg := DefaultBrowseConfig()
	cfg.ConfirmRevert = false

	model := NewBrowseModel(svc, "sess-1", svc.versions, svc.current, cfg)
	nm, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model = nm.(BrowseModel)

	model, _ = press(t, model, keyRune('g'))
	model, cmd := press(t, model, keyRune('r'))
	if cmd == nil {
		t.Fatal("revert without confirmation should run immediately")
	}
	if model.showConfirm {
		t.Error("no confirmation prompt should open")
	}

	if _, ok := cmd().(revertDoneMsg); !ok {
		t.Error("command should complete the revert")
	}
	if len(svc.reverted) != 1 || svc.reverted[0] != 1 {
		t.Errorf("reverted = %v, want [1]", svc.reverted)
	}
}

func TestRevert_ErrorSurfacesInFooter(t *testing.T) {
	svc := newTestService()
	svc.revertErr = errors.New("store offline")
	cfg := DefaultBrowseConfig()
	cfg.ConfirmRevert = false

	model := NewBrowseModel(svc, "sess-1", svc.versions, svc.current, cfg)
	nm, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model = nm.(BrowseModel)

	model, _ = press(t, model, keyRune('g'))
	model, cmd := press(t, model, keyRune('r'))
	model, _ = press(t, model, cmd())

	if model.err == nil {
		t.Fatal("store error should be recorded on the model")
	}
	if !strings.Contains(model.renderFooter(), "store offline") {
		t.Error("footer should show the store error")
	}

	// The next keypress clears the transient error.
	model, _ = press(t, model, keyRune('j'))
	if model.err != nil {
		t.Error("a keypress should clear the error")
	}
}

func TestHelpOverlay_Toggles(t *testing.T) {
	svc := newTestService()
	model := newTestModel(t, svc)

	model, _ = press(t, model, keyRune('?'))
	if !model.showHelp {
		t.Fatal("? should open help")
	}

	// Keys other than q/?/esc are swallowed while help is open.
	before := model.cursor
	model, _ = press(t, model, keyRune('k'))
	if model.cursor != before {
		t.Error("navigation should be inert while help is open")
	}
	if !model.showHelp {
		t.Error("help should stay open")
	}

	model, _ = press(t, model, keyRune('?'))
	if model.showHelp {
		t.Error("? should close help")
	}
}

func TestQuit_SetsQuitting(t *testing.T) {
	svc := newTestService()
	model := newTestModel(t, svc)

	model, cmd := press(t, model, keyRune('q'))
	if !model.quitting {
		t.Error("q should set quitting")
	}
	if cmd == nil {
		t.Error("q should return tea.Quit")
	}
	if model.View() != "" {
		t.Error("View should render nothing while quitting")
	}
}

func TestView_RendersHeaderAndFooter(t *testing.T) {
	svc := newTestService()
	model := newTestModel(t, svc)

	view := model.View()
	if !strings.Contains(view, "Rewind History") {
		t.Error("view missing title")
	}
	if !strings.Contains(view, "sess-123") {
		t.Error("view missing shortened session id")
	}
	if !strings.Contains(view, "[R] Revert") {
		t.Error("view missing footer key hints")
	}
}

func TestRenderHistory_MarksCursorAndCurrent(t *testing.T) {
	svc := newTestService()
	model := newTestModel(t, svc)

	content := model.renderHistory()
	if !strings.Contains(content, "v3") {
		t.Error("history missing v3")
	}
	if !strings.Contains(content, "CURRENT") {
		t.Error("history missing CURRENT badge")
	}
	if !strings.Contains(content, "→") {
		t.Error("history missing cursor marker")
	}
	if !strings.Contains(content, "⏮ v1") {
		t.Error("history missing revert badge for v3")
	}

	// One line per version keeps cursor tracking aligned.
	if lines := strings.Count(content, "\n") + 1; lines != len(model.versions) {
		t.Errorf("history renders %d lines, want %d", lines, len(model.versions))
	}
}

func TestRenderDiffContent_IncludesHeaderAndBody(t *testing.T) {
	svc := newTestService()
	model := newTestModel(t, svc)
	model.diffNumber = 2
	model.diffText = svc.diffs[2]

	content := model.renderDiffContent()
	if !strings.Contains(content, "fix parser") {
		t.Error("diff view missing version description")
	}
	if !strings.Contains(content, "+x = 2") {
		t.Error("diff view missing added line")
	}
	if !strings.Contains(content, "-x = 1") {
		t.Error("diff view missing removed line")
	}
}

func TestRenderDiffContent_EmptyDiff(t *testing.T) {
	svc := newTestService()
	model := newTestModel(t, svc)
	model.diffNumber = 2
	model.diffText = ""

	content := model.renderDiffContent()
	if !strings.Contains(content, "No changes recorded") {
		t.Errorf("empty diff should render a notice, got %q", content)
	}
}

func TestRenderFilesContent_ListsInventory(t *testing.T) {
	svc := newTestService()
	model := newTestModel(t, svc)
	model.snapNumber = 3
	model.snap = svc.snaps[3]

	content := model.renderFilesContent()
	if !strings.Contains(content, "a.py") {
		t.Error("files view missing path")
	}
	if !strings.Contains(content, "python") {
		t.Error("files view missing language")
	}
	if !strings.Contains(content, "6 B") {
		t.Error("files view missing total size")
	}
	if !strings.Contains(content, "cx 2") {
		t.Error("files view missing complexity")
	}
}

func TestRelativeAge(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		ms   int64
		want string
	}{
		{"zero", 0, ""},
		{"just now", now.Add(-2 * time.Second).UnixMilli(), "just now"},
		{"seconds", now.Add(-45 * time.Second).UnixMilli(), "45s ago"},
		{"minutes", now.Add(-30 * time.Minute).UnixMilli(), "30m ago"},
		{"hours", now.Add(-5 * time.Hour).UnixMilli(), "5h ago"},
		{"days", now.Add(-72 * time.Hour).UnixMilli(), "3d ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := relativeAge(tt.ms); got != tt.want {
				t.Errorf("relativeAge(%d) = %q, want %q", tt.ms, got, tt.want)
			}
		})
	}
}

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}

	for _, tt := range tests {
		if got := humanBytes(tt.n); got != tt.want {
			t.Errorf("humanBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("hello world", 8); got != "hello w…" {
		t.Errorf("truncate long = %q", got)
	}
	if got := truncate("hello", 0); got != "" {
		t.Errorf("truncate zero = %q", got)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("abcdefghij"); got != "abcdefgh" {
		t.Errorf("shortID long = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID short = %q", got)
	}
}

func TestBrowse_ValidatesInputs(t *testing.T) {
	if _, err := Browse(context.Background(), nil, "sess-1", DefaultBrowseConfig()); !errors.Is(err, snapshot.ErrInvalidInput) {
		t.Errorf("nil service error = %v, want ErrInvalidInput", err)
	}
	if _, err := Browse(context.Background(), newTestService(), "", DefaultBrowseConfig()); !errors.Is(err, snapshot.ErrInvalidInput) {
		t.Errorf("empty session error = %v, want ErrInvalidInput", err)
	}
}
