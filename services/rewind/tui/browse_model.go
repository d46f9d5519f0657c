// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tui provides the interactive history browser for rewind sessions.
//
// # Description
//
// This package implements the `rewind browse` terminal UI using bubbletea.
// It shows a session's version history, lets the user inspect the diff and
// file inventory of any version, and revert the session to an earlier
// version without leaving the browser. Reverts append a new version; the
// browser never rewrites history.
//
// # Thread Safety
//
// TUI components are designed for single-threaded use within the bubbletea
// event loop. Store calls run in tea commands and report back via messages;
// do not access model state from multiple goroutines.
package tui

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/AleutianAI/AleutianRewind/services/rewind/snapshot"
)

// =============================================================================
// View Mode
// =============================================================================

// ViewMode determines what the browser displays.
type ViewMode int

const (
	// ViewHistory lists the session's versions newest-last.
	ViewHistory ViewMode = iota

	// ViewDiff shows the unified diff introduced by the selected version.
	ViewDiff

	// ViewFiles shows the file inventory of the selected version's snapshot.
	ViewFiles
)

// =============================================================================
// Service
// =============================================================================

// Service is the slice of the snapshot store the browser needs. It is
// implemented by *rewind.Coordinator.
type Service interface {
	History(ctx context.Context, sessionID string) ([]snapshot.VersionSummary, error)
	Session(ctx context.Context, sessionID string) (snapshot.Session, error)
	RenderDiff(ctx context.Context, sessionID string, number, contextLines int) (string, error)
	Snapshot(ctx context.Context, sessionID string, number int) (*snapshot.Snapshot, error)
	Revert(ctx context.Context, sessionID string, target int, description string) (*snapshot.Version, error)
}

// =============================================================================
// Messages
// =============================================================================

// diffLoadedMsg delivers a rendered unified diff for one version.
type diffLoadedMsg struct {
	number int
	text   string
}

// filesLoadedMsg delivers the snapshot backing one version.
type filesLoadedMsg struct {
	number int
	snap   *snapshot.Snapshot
}

// revertDoneMsg reports a completed revert.
type revertDoneMsg struct {
	action RevertAction
}

// historyReloadedMsg delivers a fresh history listing after a revert.
type historyReloadedMsg struct {
	versions []snapshot.VersionSummary
	current  int
}

// errMsg carries a store error into the event loop.
type errMsg struct {
	err error
}

// =============================================================================
// Config
// =============================================================================

// BrowseConfig configures the history browser.
type BrowseConfig struct {
	// ContextLines is the number of context lines in rendered diffs.
	ContextLines int

	// ConfirmRevert requires typing "yes" before a revert runs (safety).
	ConfirmRevert bool

	// InitialVersion selects a version at startup. Zero selects the
	// session's current version.
	InitialVersion int
}

// DefaultBrowseConfig returns sensible defaults.
func DefaultBrowseConfig() BrowseConfig {
	return BrowseConfig{
		ContextLines:  3,
		ConfirmRevert: true,
	}
}

// =============================================================================
// Result
// =============================================================================

// RevertAction records one revert performed during a browse.
type RevertAction struct {
	// Target is the version whose content was restored.
	Target int

	// Created is the version the revert appended.
	Created int
}

// BrowseResult summarizes what the user did before quitting.
type BrowseResult struct {
	// Reverts lists the reverts performed, in order.
	Reverts []RevertAction
}

// =============================================================================
// Model
// =============================================================================

// BrowseModel is the bubbletea model for the history browser.
type BrowseModel struct {
	svc       Service
	sessionID string
	cfg       BrowseConfig

	versions []snapshot.VersionSummary
	current  int
	cursor   int

	viewMode ViewMode
	viewport viewport.Model
	ready    bool
	loading  bool

	diffNumber int
	diffText   string
	snapNumber int
	snap       *snapshot.Snapshot

	status string
	err    error

	showHelp     bool
	showConfirm  bool
	confirmInput string
	quitting     bool

	width  int
	height int

	reverts []RevertAction
}

// NewBrowseModel creates a browser over a preloaded history listing.
//
// # Inputs
//
//   - svc: The snapshot store. Must not be nil.
//   - sessionID: The session to browse.
//   - versions: The session's history, ascending by number.
//   - current: The session's current version number.
//   - cfg: Configuration options.
//
// # Outputs
//
//   - BrowseModel: Ready-to-use model for tea.NewProgram.
func NewBrowseModel(svc Service, sessionID string, versions []snapshot.VersionSummary, current int, cfg BrowseConfig) BrowseModel {
	m := BrowseModel{
		svc:       svc,
		sessionID: sessionID,
		cfg:       cfg,
		versions:  versions,
		current:   current,
		viewMode:  ViewHistory,
	}

	start := cfg.InitialVersion
	if start == 0 {
		start = current
	}
	m.cursor = m.indexOf(start)

	return m
}

// indexOf maps a version number to its slice index, falling back to the
// newest version when the number is unknown.
func (m BrowseModel) indexOf(number int) int {
	for i, v := range m.versions {
		if v.Number == number {
			return i
		}
	}
	if len(m.versions) == 0 {
		return 0
	}
	return len(m.versions) - 1
}

// selected returns the version under the cursor. The second result is false
// when the history is empty.
func (m BrowseModel) selected() (snapshot.VersionSummary, bool) {
	if m.cursor < 0 || m.cursor >= len(m.versions) {
		return snapshot.VersionSummary{}, false
	}
	return m.versions[m.cursor], true
}

// Init implements tea.Model.
func (m BrowseModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m BrowseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 3
		footerHeight := 3
		viewportHeight := m.height - headerHeight - footerHeight

		if !m.ready {
			m.viewport = viewport.New(m.width, viewportHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = viewportHeight
		}

		m.updateViewportContent()

	case tea.KeyMsg:
		// A keypress consumes the transient status line.
		m.status = ""
		m.err = nil

		// Handle confirmation input mode
		if m.showConfirm {
			return m.handleConfirmInput(msg)
		}

		// Handle help overlay
		if m.showHelp {
			if msg.String() == "q" || msg.String() == "?" || msg.String() == "esc" {
				m.showHelp = false
			}
			return m, nil
		}

		// Normal key handling
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "?":
			m.showHelp = true

		case "r":
			return m.requestRevert()

		case "esc", "backspace", "h", "left":
			if m.viewMode != ViewHistory {
				return m.backToHistory()
			}

		case "enter", "l", "right":
			if m.viewMode == ViewHistory {
				return m.openDiff()
			}

		case "tab":
			switch m.viewMode {
			case ViewHistory, ViewFiles:
				return m.openDiff()
			case ViewDiff:
				return m.openFiles()
			}

		case "f":
			if m.viewMode != ViewFiles {
				return m.openFiles()
			}

		case "n":
			if m.viewMode != ViewHistory {
				return m.stepVersion(1)
			}

		case "p":
			if m.viewMode != ViewHistory {
				return m.stepVersion(-1)
			}

		case "j", "down":
			if m.viewMode == ViewHistory {
				m.moveCursor(1)
			} else {
				m.viewport.LineDown(1)
			}

		case "k", "up":
			if m.viewMode == ViewHistory {
				m.moveCursor(-1)
			} else {
				m.viewport.LineUp(1)
			}

		case "ctrl+d":
			m.viewport.HalfViewDown()

		case "ctrl+u":
			m.viewport.HalfViewUp()

		case "g", "home":
			if m.viewMode == ViewHistory {
				m.moveCursorTo(0)
			} else {
				m.viewport.GotoTop()
			}

		case "G", "end":
			if m.viewMode == ViewHistory {
				m.moveCursorTo(len(m.versions) - 1)
			} else {
				m.viewport.GotoBottom()
			}
		}

		// Scrolling is handled above; letting key msgs fall through to the
		// viewport would apply its own bindings a second time.
		return m, nil

	case diffLoadedMsg:
		m.loading = false
		m.diffNumber = msg.number
		m.diffText = msg.text
		m.viewMode = ViewDiff
		m.updateViewportContent()
		m.viewport.GotoTop()

	case filesLoadedMsg:
		m.loading = false
		m.snapNumber = msg.number
		m.snap = msg.snap
		m.viewMode = ViewFiles
		m.updateViewportContent()
		m.viewport.GotoTop()

	case revertDoneMsg:
		m.reverts = append(m.reverts, msg.action)
		m.status = fmt.Sprintf("reverted to v%d, created v%d", msg.action.Target, msg.action.Created)
		m.viewMode = ViewHistory
		return m, reloadHistoryCmd(m.svc, m.sessionID)

	case historyReloadedMsg:
		m.loading = false
		m.versions = msg.versions
		m.current = msg.current
		m.cursor = m.indexOf(msg.current)
		m.updateViewportContent()

	case errMsg:
		m.loading = false
		m.err = msg.err
	}

	// Update viewport
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m BrowseModel) View() string {
	if m.quitting {
		return ""
	}

	if !m.ready {
		return "Loading...\n"
	}

	var b strings.Builder

	// Header
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	// Main content
	switch {
	case m.showHelp:
		b.WriteString(m.renderHelp())
	case m.showConfirm:
		b.WriteString(m.renderConfirm())
	case m.loading:
		b.WriteString(mutedStyle.Render("Loading..."))
	default:
		b.WriteString(m.viewport.View())
	}

	// Footer
	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	return b.String()
}

// =============================================================================
// Navigation
// =============================================================================

func (m *BrowseModel) moveCursor(delta int) {
	m.moveCursorTo(m.cursor + delta)
}

func (m *BrowseModel) moveCursorTo(index int) {
	if len(m.versions) == 0 {
		return
	}
	if index < 0 {
		index = 0
	}
	if index > len(m.versions)-1 {
		index = len(m.versions) - 1
	}
	m.cursor = index
	m.updateViewportContent()
	m.scrollCursorIntoView()
}

// scrollCursorIntoView keeps the history cursor inside the viewport window.
func (m *BrowseModel) scrollCursorIntoView() {
	if !m.ready || m.viewMode != ViewHistory {
		return
	}
	if m.cursor < m.viewport.YOffset {
		m.viewport.SetYOffset(m.cursor)
	}
	bottom := m.viewport.YOffset + m.viewport.Height - 1
	if m.cursor > bottom {
		m.viewport.SetYOffset(m.cursor - m.viewport.Height + 1)
	}
}

func (m *BrowseModel) openDiff() (BrowseModel, tea.Cmd) {
	v, ok := m.selected()
	if !ok {
		return *m, nil
	}
	if m.viewMode != ViewHistory && m.diffNumber == v.Number && m.diffText != "" {
		m.viewMode = ViewDiff
		m.updateViewportContent()
		return *m, nil
	}
	m.loading = true
	return *m, loadDiffCmd(m.svc, m.sessionID, v.Number, m.cfg.ContextLines)
}

func (m *BrowseModel) openFiles() (BrowseModel, tea.Cmd) {
	v, ok := m.selected()
	if !ok {
		return *m, nil
	}
	if m.snap != nil && m.snapNumber == v.Number {
		m.viewMode = ViewFiles
		m.updateViewportContent()
		return *m, nil
	}
	m.loading = true
	return *m, loadFilesCmd(m.svc, m.sessionID, v.Number)
}

func (m *BrowseModel) backToHistory() (BrowseModel, tea.Cmd) {
	m.viewMode = ViewHistory
	m.updateViewportContent()
	m.scrollCursorIntoView()
	return *m, nil
}

// stepVersion moves the selection forward or backward in history while
// staying in the current detail view.
func (m *BrowseModel) stepVersion(delta int) (BrowseModel, tea.Cmd) {
	next := m.cursor + delta
	if next < 0 || next > len(m.versions)-1 {
		return *m, nil
	}
	m.cursor = next
	switch m.viewMode {
	case ViewFiles:
		return m.openFiles()
	default:
		return m.openDiff()
	}
}

// =============================================================================
// Actions
// =============================================================================

// requestRevert starts a revert of the session to the selected version,
// asking for confirmation when the config demands it.
func (m *BrowseModel) requestRevert() (BrowseModel, tea.Cmd) {
	v, ok := m.selected()
	if !ok {
		return *m, nil
	}

	if v.Number == m.current {
		m.status = fmt.Sprintf("already at v%d, nothing to revert", v.Number)
		return *m, nil
	}

	if m.cfg.ConfirmRevert {
		m.showConfirm = true
		m.confirmInput = ""
		return *m, nil
	}

	m.loading = true
	return *m, revertCmd(m.svc, m.sessionID, v.Number)
}

// =============================================================================
// Confirmation Handling
// =============================================================================

func (m BrowseModel) handleConfirmInput(msg tea.KeyMsg) (BrowseModel, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if strings.ToLower(m.confirmInput) == "yes" {
			m.showConfirm = false
			m.confirmInput = ""
			if v, ok := m.selected(); ok {
				m.loading = true
				return m, revertCmd(m.svc, m.sessionID, v.Number)
			}
			return m, nil
		}
		m.showConfirm = false
		m.confirmInput = ""

	case "esc":
		m.showConfirm = false
		m.confirmInput = ""

	case "backspace":
		if len(m.confirmInput) > 0 {
			m.confirmInput = m.confirmInput[:len(m.confirmInput)-1]
		}

	default:
		if len(msg.String()) == 1 {
			m.confirmInput += msg.String()
		}
	}

	return m, nil
}

// =============================================================================
// Commands
// =============================================================================

func loadDiffCmd(svc Service, sessionID string, number, contextLines int) tea.Cmd {
	return func() tea.Msg {
		text, err := svc.RenderDiff(context.Background(), sessionID, number, contextLines)
		if err != nil {
			return errMsg{err: err}
		}
		return diffLoadedMsg{number: number, text: text}
	}
}

func loadFilesCmd(svc Service, sessionID string, number int) tea.Cmd {
	return func() tea.Msg {
		snap, err := svc.Snapshot(context.Background(), sessionID, number)
		if err != nil {
			return errMsg{err: err}
		}
		return filesLoadedMsg{number: number, snap: snap}
	}
}

func revertCmd(svc Service, sessionID string, target int) tea.Cmd {
	return func() tea.Msg {
		v, err := svc.Revert(context.Background(), sessionID, target, "")
		if err != nil {
			return errMsg{err: err}
		}
		return revertDoneMsg{action: RevertAction{Target: target, Created: v.Number}}
	}
}

func reloadHistoryCmd(svc Service, sessionID string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		versions, err := svc.History(ctx, sessionID)
		if err != nil {
			return errMsg{err: err}
		}
		sess, err := svc.Session(ctx, sessionID)
		if err != nil {
			return errMsg{err: err}
		}
		return historyReloadedMsg{versions: versions, current: sess.Current}
	}
}

// =============================================================================
// Viewport Content
// =============================================================================

func (m *BrowseModel) updateViewportContent() {
	if !m.ready {
		return
	}

	var content string
	switch m.viewMode {
	case ViewHistory:
		content = m.renderHistory()
	case ViewDiff:
		content = m.renderDiffContent()
	case ViewFiles:
		content = m.renderFilesContent()
	}

	m.viewport.SetContent(content)
}

// =============================================================================
// Result Access
// =============================================================================

// Result returns what the browse run did. Valid after the TUI exits; before
// that it reflects the reverts performed so far.
func (m BrowseModel) Result() *BrowseResult {
	return &BrowseResult{Reverts: m.reverts}
}

// =============================================================================
// Program Entry
// =============================================================================

// Browse runs the interactive history browser for one session and blocks
// until the user quits.
//
// # Inputs
//
//   - ctx: Context for the initial history load.
//   - svc: The snapshot store, typically a *rewind.Coordinator.
//   - sessionID: The session to browse.
//   - cfg: Configuration options.
//
// # Outputs
//
//   - *BrowseResult: The reverts performed during the run.
//   - error: Load or terminal failures.
func Browse(ctx context.Context, svc Service, sessionID string, cfg BrowseConfig) (*BrowseResult, error) {
	if svc == nil {
		return nil, fmt.Errorf("%w: service must not be nil", snapshot.ErrInvalidInput)
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id must not be empty", snapshot.ErrInvalidInput)
	}

	versions, err := svc.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess, err := svc.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	m := NewBrowseModel(svc, sessionID, versions, sess.Current, cfg)

	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))
	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("history browser failed: %w", err)
	}

	result, ok := finalModel.(BrowseModel)
	if !ok {
		return nil, fmt.Errorf("unexpected model type from bubbletea: %T", finalModel)
	}

	return result.Result(), nil
}
