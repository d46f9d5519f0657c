// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides rich terminal output styling for the Rewind CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Brand palette, brightest teal first.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealVibrant = lipgloss.Color("#1D9EA3")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")
	ColorDarkest     = lipgloss.Color("#0F1923")
)

// Semantic aliases. Warning and error sit outside the teal family so
// they read at a glance next to it.
var (
	ColorSuccess  = ColorTealBright
	ColorWarning  = lipgloss.Color("#F4D03F")
	ColorError    = lipgloss.Color("#E74C3C")
	ColorMuted    = ColorSlate
	ColorAddition = ColorTealBright
	ColorDeletion = ColorError
)

type styleSet struct {
	Title     lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	DiffAdd    lipgloss.Style
	DiffDelete lipgloss.Style
	DiffHunk   lipgloss.Style
	DiffHeader lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
}

// Styles holds the shared lipgloss styles used across the CLI.
var Styles = newStyleSet()

func newStyleSet() styleSet {
	tint := func(c lipgloss.Color) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(c)
	}
	frame := func(c lipgloss.Color) lipgloss.Style {
		return lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(c).
			Padding(0, 1)
	}

	return styleSet{
		Title:     tint(ColorTealBright).Bold(true),
		Muted:     tint(ColorMuted),
		Success:   tint(ColorSuccess),
		Warning:   tint(ColorWarning),
		Error:     tint(ColorError),
		Highlight: tint(ColorTealBright).Bold(true),

		DiffAdd:    tint(ColorAddition),
		DiffDelete: tint(ColorDeletion),
		DiffHunk:   tint(ColorTealVibrant),
		DiffHeader: tint(ColorTealPrimary).Bold(true),

		Box:        frame(ColorTealDeep),
		WarningBox: frame(ColorWarning),
	}
}

// Icon is a single-glyph status marker.
type Icon string

const (
	IconSuccess  Icon = "✓"
	IconWarning  Icon = "⚠"
	IconError    Icon = "✗"
	IconArrow    Icon = "→"
	IconRewind   Icon = "⏮"
	IconSnapshot Icon = "◉"
)

var iconTint = map[Icon]lipgloss.Style{
	IconSuccess: Styles.Success,
	IconWarning: Styles.Warning,
	IconError:   Styles.Error,
}

// Render returns the icon, colored when it has a semantic tint.
func (i Icon) Render() string {
	if style, ok := iconTint[i]; ok {
		return style.Render(string(i))
	}
	return string(i)
}

func machineMode() bool {
	return GetPersonality().Level == PersonalityMachine
}

// statusLine is the shared body of Success, Warning, and Error. Machine
// mode emits prefix-tagged plain lines on w; minimal mode drops the
// message styling but keeps the icon.
func statusLine(w io.Writer, prefix string, icon Icon, style lipgloss.Style, text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(w, "%s: %s\n", prefix, text)
	case PersonalityMinimal:
		fmt.Printf("%s %s\n", icon.Render(), text)
	default:
		fmt.Printf("%s %s\n", icon.Render(), style.Render(text))
	}
}

// Title prints a styled heading. Machine mode suppresses it.
func Title(text string) {
	if machineMode() {
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a confirmation line on stdout.
func Success(text string) {
	statusLine(os.Stdout, "OK", IconSuccess, Styles.Success, text)
}

// Warning prints a warning. Machine mode routes it to stderr.
func Warning(text string) {
	statusLine(os.Stderr, "WARN", IconWarning, Styles.Warning, text)
}

// Error prints an error. Machine mode routes it to stderr.
func Error(text string) {
	statusLine(os.Stderr, "ERROR", IconError, Styles.Error, text)
}

// Info prints an informational line. Machine mode prints it bare so
// pipelines can consume it.
func Info(text string) {
	if machineMode() {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary detail. Machine mode suppresses it.
func Muted(text string) {
	if machineMode() {
		return
	}
	fmt.Println(Styles.Muted.Render(text))
}

// Tip prints a usage hint. Suppressed in machine mode and when tips are
// disabled.
func Tip(text string) {
	p := GetPersonality()
	if p.Level == PersonalityMachine || !p.ShowTips {
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("tip:"), Styles.Muted.Render(text))
}

// Box prints a titled panel. Machine mode flattens it to "title: content".
func Box(title, content string) {
	if machineMode() {
		fmt.Printf("%s: %s\n", title, content)
		return
	}
	fmt.Println(renderPanel(Styles.Box, Styles.Title.Render(title), content))
}

// WarningBox prints a warning panel. Machine mode flattens it to a WARN
// line on stderr.
func WarningBox(title, content string) {
	if machineMode() {
		fmt.Fprintf(os.Stderr, "WARN %s: %s\n", title, content)
		return
	}
	fmt.Println(renderPanel(Styles.WarningBox, Styles.Warning.Bold(true).Render(title), content))
}

func renderPanel(frame lipgloss.Style, heading, body string) string {
	return frame.Width(60).Render(heading + "\n" + body)
}

// FileStatus prints one file with its capture status. Machine mode emits
// a tab-separated record; minimal mode drops the reason.
func FileStatus(path string, status Icon, reason string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Printf("%s\t%s\t%s\n", status, path, reason)
	case PersonalityMinimal:
		fmt.Printf("%s %s\n", status.Render(), path)
	default:
		line := status.Render() + " " + path
		if reason != "" {
			line += " " + Styles.Muted.Render("("+reason+")")
		}
		fmt.Println(line)
	}
}

// ChangeSummary prints the per-kind change counts for a version.
func ChangeSummary(added, modified, removed int) {
	if machineMode() {
		fmt.Printf("SUMMARY: added=%d modified=%d removed=%d\n", added, modified, removed)
		return
	}
	cells := []string{
		Styles.Success.Render(fmt.Sprintf("+%d", added)) + " " + Styles.Muted.Render("added"),
		Styles.Warning.Render(fmt.Sprintf("~%d", modified)) + " " + Styles.Muted.Render("modified"),
		Styles.Error.Render(fmt.Sprintf("-%d", removed)) + " " + Styles.Muted.Render("removed"),
	}
	fmt.Printf("\n%s\n", strings.Join(cells, "  "))
}

// VersionLine prints one history entry. Machine mode emits a
// tab-separated record with a "*" marker on the current version.
func VersionLine(number int, description, age string, current bool) {
	if machineMode() {
		marker := " "
		if current {
			marker = "*"
		}
		fmt.Printf("%s\t%d\t%s\t%s\n", marker, number, age, description)
		return
	}

	glyph := " "
	num := Styles.Muted.Render(fmt.Sprintf("v%d", number))
	if current {
		glyph = IconSnapshot.Render()
		num = Styles.Highlight.Render(fmt.Sprintf("v%d", number))
	}
	fmt.Printf("%s %s  %s %s\n", glyph, num, description, Styles.Muted.Render("("+age+")"))
}
