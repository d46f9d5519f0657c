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
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/AleutianRewind/services/rewind/snapshot"
)

// =============================================================================
// Header Rendering
// =============================================================================

func (m BrowseModel) renderHeader() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Rewind History"))
	b.WriteString("\n")

	if len(m.versions) == 0 {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("session %s · no versions yet", shortID(m.sessionID))))
		return b.String()
	}

	info := fmt.Sprintf("session %s · %d versions · current v%d",
		shortID(m.sessionID), len(m.versions), m.current)
	b.WriteString(mutedStyle.Render(info))

	return b.String()
}

// =============================================================================
// History Rendering
// =============================================================================

// renderHistory produces exactly one line per version so the cursor index
// maps directly onto viewport lines.
func (m BrowseModel) renderHistory() string {
	if len(m.versions) == 0 {
		return mutedStyle.Render("No versions yet. Capture one with 'rewind ingest'.")
	}

	var b strings.Builder
	for i, v := range m.versions {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderHistoryRow(i, v))
	}
	return b.String()
}

func (m BrowseModel) renderHistoryRow(index int, v snapshot.VersionSummary) string {
	var b strings.Builder

	if index == m.cursor {
		b.WriteString(cursorStyle.Render("→ "))
	} else {
		b.WriteString("  ")
	}

	b.WriteString(versionStyle.Render(fmt.Sprintf("v%-4d", v.Number)))
	b.WriteString(" ")

	desc := truncate(v.Description, 48)
	if index == m.cursor {
		b.WriteString(cursorStyle.Render(desc))
	} else {
		b.WriteString(descStyle.Render(desc))
	}

	meta := fmt.Sprintf("  %d files · %s", v.ChangedFiles, relativeAge(v.CreatedAt))
	b.WriteString(mutedStyle.Render(meta))

	if v.RevertedFrom > 0 {
		b.WriteString("  ")
		b.WriteString(revertBadge.Render(fmt.Sprintf("⏮ v%d", v.RevertedFrom)))
	}

	if v.Number == m.current {
		b.WriteString("  ")
		b.WriteString(currentBadge.Render("CURRENT"))
	}

	return b.String()
}

// =============================================================================
// Diff Rendering
// =============================================================================

func (m BrowseModel) renderDiffContent() string {
	var b strings.Builder

	if v, ok := m.versionByNumber(m.diffNumber); ok {
		b.WriteString(fileHeaderStyle.Render(fmt.Sprintf("v%d · %s", v.Number, v.Description)))
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render(fmt.Sprintf("%d files changed · %s",
			v.ChangedFiles, relativeAge(v.CreatedAt))))
		b.WriteString("\n\n")
	}

	text := strings.TrimRight(m.diffText, "\n")
	if text == "" {
		b.WriteString(mutedStyle.Render("No changes recorded for this version."))
		return b.String()
	}

	for _, line := range strings.Split(text, "\n") {
		b.WriteString(styleDiffLine(line))
		b.WriteString("\n")
	}

	return b.String()
}

func styleDiffLine(line string) string {
	switch {
	case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
		return fileHeaderStyle.Render(line)
	case strings.HasPrefix(line, "@@"):
		return hunkHeaderStyle.Render(line)
	case strings.HasPrefix(line, "+"):
		return addedStyle.Render(line)
	case strings.HasPrefix(line, "-"):
		return removedStyle.Render(line)
	case strings.HasPrefix(line, `\`):
		return mutedStyle.Render(line)
	default:
		return contextStyle.Render(line)
	}
}

func (m BrowseModel) versionByNumber(number int) (snapshot.VersionSummary, bool) {
	for _, v := range m.versions {
		if v.Number == number {
			return v, true
		}
	}
	return snapshot.VersionSummary{}, false
}

// =============================================================================
// File Inventory Rendering
// =============================================================================

func (m BrowseModel) renderFilesContent() string {
	if m.snap == nil {
		return mutedStyle.Render("No snapshot loaded.")
	}

	var b strings.Builder

	head := fmt.Sprintf("v%d · %d files · %s",
		m.snapNumber, len(m.snap.Files), humanBytes(m.snap.Files.TotalBytes()))
	b.WriteString(fileHeaderStyle.Render(head))
	b.WriteString("\n\n")

	paths := make([]string, 0, len(m.snap.Files))
	for path := range m.snap.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for i, path := range paths {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderFileRow(path))
	}

	return b.String()
}

func (m BrowseModel) renderFileRow(path string) string {
	var b strings.Builder

	b.WriteString("  ")
	b.WriteString(filePathStyle.Render(fmt.Sprintf("%-32s", truncate(path, 32))))

	meta, ok := m.snap.Meta[path]
	if !ok {
		return b.String()
	}

	parts := []string{
		fmt.Sprintf("%-10s", meta.Language),
		fmt.Sprintf("%5d lines", meta.Lines.Total),
		fmt.Sprintf("%9s", humanBytes(meta.SizeBytes)),
	}
	if meta.Complexity != nil {
		parts = append(parts, fmt.Sprintf("cx %.0f", *meta.Complexity))
	}
	if len(meta.Dependencies) > 0 {
		parts = append(parts, fmt.Sprintf("%d deps", len(meta.Dependencies)))
	}
	b.WriteString(mutedStyle.Render("  " + strings.Join(parts, "  ")))

	if meta.AnalysisIncomplete {
		b.WriteString("  ")
		b.WriteString(partialBadge.Render("PARTIAL"))
	}

	return b.String()
}

// =============================================================================
// Help Rendering
// =============================================================================

func (m BrowseModel) renderHelp() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Keyboard Shortcuts"))
	b.WriteString("\n\n")

	helpItems := []struct {
		key  string
		desc string
	}{
		{"↑/↓ or J/K", "Move selection / scroll"},
		{"Enter", "Show diff for selected version"},
		{"F", "Show files in selected version"},
		{"Tab", "Toggle diff and file views"},
		{"N / P", "Newer / older version in detail views"},
		{"R", "Revert session to selected version"},
		{"", ""},
		{"Esc or H", "Back to history"},
		{"Ctrl+D/U", "Page down/up"},
		{"G / Shift+G", "Go to top/bottom"},
		{"?", "Toggle this help"},
		{"Q", "Quit"},
	}

	for _, item := range helpItems {
		if item.key == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString(fmt.Sprintf("  %s  %s\n",
			helpKeyStyle.Render(fmt.Sprintf("%-15s", item.key)),
			helpDescStyle.Render(item.desc),
		))
	}

	b.WriteString("\n")
	b.WriteString(helpDescStyle.Render("Press ? or Q to close help"))

	return b.String()
}

// =============================================================================
// Confirm Dialog Rendering
// =============================================================================

func (m BrowseModel) renderConfirm() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Confirm Revert"))
	b.WriteString("\n\n")

	if v, ok := m.selected(); ok {
		b.WriteString(fmt.Sprintf("This will restore the session to v%d by appending a new version.\n", v.Number))
		b.WriteString("History is preserved; nothing is rewritten.\n\n")
	}

	b.WriteString("Type 'yes' to confirm: ")
	b.WriteString(lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Bold(true).
		Render(m.confirmInput))
	b.WriteString("▌")

	b.WriteString("\n\n")
	b.WriteString(helpDescStyle.Render("Press Enter to confirm, Esc to cancel"))

	return b.String()
}

// =============================================================================
// Footer Rendering
// =============================================================================

func (m BrowseModel) renderFooter() string {
	var keys []string

	switch {
	case m.showConfirm:
		keys = []string{"[Enter] Confirm", "[Esc] Cancel"}
	case m.showHelp:
		keys = []string{"[?] Close help", "[Q] Close"}
	default:
		switch m.viewMode {
		case ViewHistory:
			keys = []string{
				"[↑↓] Select", "[Enter] Diff", "[F] Files",
				"[R] Revert", "[?] Help", "[Q] Quit",
			}
		case ViewDiff:
			keys = []string{
				"[↑↓] Scroll", "[N/P] Newer/Older", "[Tab] Files",
				"[R] Revert", "[Esc] Back", "[Q] Quit",
			}
		case ViewFiles:
			keys = []string{
				"[↑↓] Scroll", "[N/P] Newer/Older", "[Tab] Diff",
				"[R] Revert", "[Esc] Back", "[Q] Quit",
			}
		}
	}

	line := mutedStyle.Render(strings.Join(keys, "  "))

	switch {
	case m.err != nil:
		return line + "\n" + errorStyle.Render("error: "+m.err.Error())
	case m.status != "":
		return line + "\n" + statusStyle.Render(m.status)
	default:
		return line
	}
}

// =============================================================================
// Formatting Helpers
// =============================================================================

// relativeAge renders a millisecond timestamp as a coarse age like "5m ago".
func relativeAge(unixMilli int64) string {
	if unixMilli <= 0 {
		return ""
	}
	d := time.Since(time.UnixMilli(unixMilli))
	switch {
	case d < 10*time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// truncate shortens s to max runes, ending with an ellipsis when cut.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// =============================================================================
// Styles
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	versionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("75"))

	descStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	addedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	removedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	contextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	hunkHeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")).
			Bold(true)

	fileHeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	filePathStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	currentBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Background(lipgloss.Color("22")).
			Padding(0, 1)

	revertBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Background(lipgloss.Color("58")).
			Padding(0, 1)

	partialBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Background(lipgloss.Color("58")).
			Padding(0, 1)
)
