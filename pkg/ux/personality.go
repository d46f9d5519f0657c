// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel selects how much decoration CLI output carries.
type PersonalityLevel string

const (
	// PersonalityFull is the interactive default: colors, boxes, tips.
	PersonalityFull PersonalityLevel = "full"

	// PersonalityStandard keeps colors and icons, drops the flourishes.
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal is icons and plain formatting only.
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine emits stable, parseable plain text for pipes
	// and scripts.
	PersonalityMachine PersonalityLevel = "machine"
)

// Personality is the active output configuration.
type Personality struct {
	// Level controls decoration (full, standard, minimal, machine).
	Level PersonalityLevel

	// Theme names the color theme. Only "default" ships today.
	Theme string

	// ShowTips prints follow-up hints after commands.
	ShowTips bool
}

// levelAliases maps accepted spellings to levels. Unknown strings fall back
// to standard.
var levelAliases = map[string]PersonalityLevel{
	"full": PersonalityFull, "f": PersonalityFull,
	"standard": PersonalityStandard, "std": PersonalityStandard, "s": PersonalityStandard,
	"minimal": PersonalityMinimal, "min": PersonalityMinimal, "m": PersonalityMinimal,
	"machine": PersonalityMachine, "quiet": PersonalityMachine, "q": PersonalityMachine,
}

var (
	personalityMu      sync.RWMutex
	currentPersonality = DefaultPersonality()
)

// DefaultPersonality returns the out-of-the-box settings.
func DefaultPersonality() Personality {
	return Personality{Level: PersonalityFull, Theme: "default", ShowTips: true}
}

// GetPersonality returns a copy of the active settings.
func GetPersonality() Personality {
	personalityMu.RLock()
	defer personalityMu.RUnlock()
	return currentPersonality
}

// SetPersonality replaces the active settings.
func SetPersonality(p Personality) {
	personalityMu.Lock()
	currentPersonality = p
	personalityMu.Unlock()
}

// SetPersonalityLevel changes only the level, keeping theme and tips.
func SetPersonalityLevel(level PersonalityLevel) {
	personalityMu.Lock()
	currentPersonality.Level = level
	personalityMu.Unlock()
}

// ParsePersonalityLevel resolves a user-supplied level name, accepting the
// short aliases (f, std, min, q, ...). Anything unrecognized comes back as
// standard.
func ParsePersonalityLevel(s string) PersonalityLevel {
	if level, ok := levelAliases[strings.ToLower(s)]; ok {
		return level
	}
	return PersonalityStandard
}

// InitPersonality picks the starting level: REWIND_PERSONALITY wins, then
// piped output forces machine, otherwise full.
func InitPersonality() {
	SetPersonalityLevel(detectLevel())
}

func detectLevel() PersonalityLevel {
	if env := os.Getenv("REWIND_PERSONALITY"); env != "" {
		return ParsePersonalityLevel(env)
	}
	if !isTerminal() {
		return PersonalityMachine
	}
	return PersonalityFull
}

// isTerminal reports whether stdout is attached to a terminal (including
// cygwin/msys ptys, which fail the plain char-device test).
func isTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsInteractive reports whether prompts may block on the user: a terminal
// on stdout and a non-machine level.
func IsInteractive() bool {
	return GetPersonality().Level != PersonalityMachine && isTerminal()
}

// ShouldShowProgress reports whether spinners and progress lines are wanted.
func ShouldShowProgress() bool {
	return GetPersonality().Level != PersonalityMachine
}

// ShouldShowColors reports whether ANSI styling is wanted.
func ShouldShowColors() bool {
	return GetPersonality().Level != PersonalityMachine
}
