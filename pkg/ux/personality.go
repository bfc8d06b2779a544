// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux renders the chat experience in the terminal: colored
// labels and status lines, a spinner for the wait before the first
// token, raw token streaming while an answer arrives, and a markdown
// pass (with math normalization) for completed messages and history
// replay.
//
// Every renderer takes an io.Writer, so tests drive the package with a
// bytes.Buffer instead of a pty.
package ux

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// =============================================================================
// Personality
// =============================================================================

// Personality selects how much decoration the terminal output carries.
type Personality int

const (
	// PersonalityRich enables colors, the spinner, and glamour
	// markdown rendering. The default on an interactive terminal.
	PersonalityRich Personality = iota

	// PersonalityPlain keeps the labels but drops colors, the
	// spinner, and markdown rendering. The default when stdout is a
	// pipe.
	PersonalityPlain

	// PersonalityMachine emits bare content only, for scripting.
	PersonalityMachine
)

// personalityEnvVar overrides detection: "rich", "plain" or "machine".
const personalityEnvVar = "ZHIXUE_OUTPUT"

// DetectPersonality picks the personality from the environment, falling
// back to a TTY check on stdout.
func DetectPersonality() Personality {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(personalityEnvVar))) {
	case "rich":
		return PersonalityRich
	case "plain":
		return PersonalityPlain
	case "machine":
		return PersonalityMachine
	}

	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return PersonalityRich
	}
	return PersonalityPlain
}

// String implements fmt.Stringer for log output.
func (p Personality) String() string {
	switch p {
	case PersonalityRich:
		return "rich"
	case PersonalityPlain:
		return "plain"
	case PersonalityMachine:
		return "machine"
	default:
		return "unknown"
	}
}
