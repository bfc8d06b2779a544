// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Palette
// =============================================================================

var (
	colorPrimary   = lipgloss.Color("#5B8DEF") // Zhixueban blue
	colorAssistant = lipgloss.Color("#8A6FE8")
	colorUser      = lipgloss.Color("#2FB380")
	colorMuted     = lipgloss.Color("#8A8F98")
	colorSuccess   = lipgloss.Color("#2FB380")
	colorWarning   = lipgloss.Color("#E8A33D")
	colorError     = lipgloss.Color("#E05252")
)

// Styles groups the lipgloss styles the renderers share.
type Styles struct {
	Title          lipgloss.Style
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Provider       lipgloss.Style
	Muted          lipgloss.Style
	Success        lipgloss.Style
	Warning        lipgloss.Style
	Error          lipgloss.Style
	Active         lipgloss.Style
}

// DefaultStyles returns the standard Zhixueban terminal styles.
func DefaultStyles() Styles {
	return Styles{
		Title:          lipgloss.NewStyle().Bold(true).Foreground(colorPrimary),
		UserLabel:      lipgloss.NewStyle().Bold(true).Foreground(colorUser),
		AssistantLabel: lipgloss.NewStyle().Bold(true).Foreground(colorAssistant),
		Provider:       lipgloss.NewStyle().Foreground(colorMuted).Italic(true),
		Muted:          lipgloss.NewStyle().Foreground(colorMuted),
		Success:        lipgloss.NewStyle().Foreground(colorSuccess),
		Warning:        lipgloss.NewStyle().Foreground(colorWarning),
		Error:          lipgloss.NewStyle().Foreground(colorError),
		Active:         lipgloss.NewStyle().Bold(true).Foreground(colorPrimary),
	}
}

// =============================================================================
// Console
// =============================================================================

// Console prints one-line status messages, honoring the personality.
type Console struct {
	w           io.Writer
	styles      Styles
	personality Personality
}

// NewConsole creates a Console writing to w.
func NewConsole(w io.Writer, personality Personality) *Console {
	return &Console{w: w, styles: DefaultStyles(), personality: personality}
}

// Successf prints a success line ("✓ ...").
func (c *Console) Successf(format string, args ...any) {
	c.line(c.styles.Success, "✓", format, args...)
}

// Warnf prints a warning line ("! ...").
func (c *Console) Warnf(format string, args ...any) {
	c.line(c.styles.Warning, "!", format, args...)
}

// Errorf prints an error line ("✗ ...").
func (c *Console) Errorf(format string, args ...any) {
	c.line(c.styles.Error, "✗", format, args...)
}

// Infof prints a muted informational line.
func (c *Console) Infof(format string, args ...any) {
	c.line(c.styles.Muted, "·", format, args...)
}

func (c *Console) line(style lipgloss.Style, icon, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	switch c.personality {
	case PersonalityMachine:
		fmt.Fprintln(c.w, msg)
	case PersonalityPlain:
		fmt.Fprintf(c.w, "%s %s\n", icon, msg)
	default:
		fmt.Fprintln(c.w, style.Render(icon+" "+msg))
	}
}
