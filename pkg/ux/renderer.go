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
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/zhixueban/zhixue-cli/pkg/mathtext"
	"github.com/zhixueban/zhixue-cli/pkg/session"
)

// =============================================================================
// Labels
// =============================================================================

const (
	userLabel      = "你"
	assistantLabel = "智学伴"

	thinkingMessage = "思考中..."

	markdownWordWrap = 96
)

// =============================================================================
// ChatRenderer
// =============================================================================

// ChatRenderer draws one question/answer exchange and the surrounding
// chrome. Tokens stream raw as they arrive; completed assistant
// messages (history replay, session switches) go through math
// normalization and glamour markdown rendering instead, since a
// half-received message cannot be re-rendered in place.
type ChatRenderer struct {
	w           io.Writer
	styles      Styles
	personality Personality
	markdown    *glamour.TermRenderer
	spinner     *Spinner

	mu       sync.Mutex
	streamed bool
}

// NewChatRenderer creates a renderer writing to w. Markdown rendering
// is only active for PersonalityRich; if glamour fails to initialize,
// the renderer degrades to plain text rather than failing the chat.
func NewChatRenderer(w io.Writer, personality Personality) *ChatRenderer {
	r := &ChatRenderer{
		w:           w,
		styles:      DefaultStyles(),
		personality: personality,
		spinner:     NewSpinner(w, thinkingMessage, personality == PersonalityRich),
	}

	if personality == PersonalityRich {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(markdownWordWrap),
		)
		if err == nil {
			r.markdown = md
		}
	}
	return r
}

// BeginAnswer prints the assistant label with the provider tag and
// starts the wait spinner.
func (r *ChatRenderer) BeginAnswer(provider string) {
	r.mu.Lock()
	r.streamed = false
	r.mu.Unlock()

	switch r.personality {
	case PersonalityMachine:
	case PersonalityPlain:
		fmt.Fprintf(r.w, "%s (%s):\n", assistantLabel, provider)
	default:
		fmt.Fprintf(r.w, "%s %s\n",
			r.styles.AssistantLabel.Render(assistantLabel),
			r.styles.Provider.Render("("+provider+")"))
		r.spinner.Start()
	}
}

// Token writes one streamed content delta. The first token stops the
// spinner.
func (r *ChatRenderer) Token(tok string) {
	r.mu.Lock()
	first := !r.streamed
	r.streamed = true
	r.mu.Unlock()

	if first {
		r.spinner.Stop()
	}
	fmt.Fprint(r.w, tok)
}

// EndAnswer closes out a streamed answer.
func (r *ChatRenderer) EndAnswer() {
	r.spinner.Stop()
	if r.personality != PersonalityMachine {
		fmt.Fprint(r.w, "\n\n")
	} else {
		fmt.Fprintln(r.w)
	}
}

// FailAnswer stops the spinner and prints an error-styled message on
// its own line. Used when the stream ends in an error rather than
// content.
func (r *ChatRenderer) FailAnswer(msg string) {
	r.spinner.Stop()

	r.mu.Lock()
	streamed := r.streamed
	r.mu.Unlock()
	if streamed {
		fmt.Fprintln(r.w)
	}

	switch r.personality {
	case PersonalityMachine, PersonalityPlain:
		fmt.Fprintln(r.w, msg)
	default:
		fmt.Fprintln(r.w, r.styles.Error.Render(msg))
	}
}

// RenderMarkdown normalizes math markup and, in rich mode, renders the
// content as markdown. Other personalities get the normalized text
// back unchanged.
func (r *ChatRenderer) RenderMarkdown(content string) string {
	normalized := mathtext.Normalize(content)
	if r.markdown == nil {
		return normalized
	}
	rendered, err := r.markdown.Render(normalized)
	if err != nil {
		return normalized
	}
	return rendered
}

// Message prints one completed message, used when replaying a session
// after a switch or on startup.
func (r *ChatRenderer) Message(msg session.Message) {
	if r.personality == PersonalityMachine {
		fmt.Fprintln(r.w, msg.Content)
		return
	}

	label := userLabel
	style := r.styles.UserLabel
	if msg.Role == session.RoleAssistant {
		label = assistantLabel
		style = r.styles.AssistantLabel
	}

	provider := ""
	if msg.Provider != "" {
		provider = " " + r.styles.Provider.Render("("+msg.Provider+")")
	}

	if r.personality == PersonalityPlain {
		fmt.Fprintf(r.w, "%s:\n%s\n\n", label, msg.Content)
		return
	}

	fmt.Fprintf(r.w, "%s%s\n", style.Render(label), provider)
	body := msg.Content
	if msg.Role == session.RoleAssistant {
		body = r.RenderMarkdown(msg.Content)
	}
	fmt.Fprintln(r.w, strings.TrimRight(body, "\n"))
	fmt.Fprintln(r.w)
}

// Transcript replays a session's messages in order.
func (r *ChatRenderer) Transcript(s session.Session) {
	if r.personality != PersonalityMachine {
		fmt.Fprintln(r.w, r.styles.Title.Render("── "+s.Title+" ──"))
		fmt.Fprintln(r.w)
	}
	for _, msg := range s.Messages {
		if msg.Content == "" {
			continue
		}
		r.Message(msg)
	}
}

// SessionList prints the session sidebar: index, title, message count,
// with the active session highlighted.
func (r *ChatRenderer) SessionList(sessions []session.Session, activeID string) {
	for i, s := range sessions {
		marker := "  "
		line := fmt.Sprintf("%2d. %s (%d条消息)", i+1, s.Title, len(s.Messages))
		if s.ID == activeID {
			marker = "* "
			if r.personality == PersonalityRich {
				line = r.styles.Active.Render(line)
			}
		} else if r.personality == PersonalityRich {
			line = r.styles.Muted.Render(line)
		}
		fmt.Fprintln(r.w, marker+line)
	}
}
