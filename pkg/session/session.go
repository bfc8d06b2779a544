// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session holds the chat session model and the ordered
// in-memory session store for the Zhixueban CLI.
//
// This file defines the data model: messages, sessions, identifiers,
// and title derivation.
package session

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// RoleUser marks a message typed by the learner.
	RoleUser = "user"

	// RoleAssistant marks a message produced by the AI tutor.
	RoleAssistant = "assistant"
)

const (
	// MaxSessions caps the session list. Older sessions beyond the
	// cap are evicted from the tail on every prepend.
	MaxSessions = 20

	// DefaultTitle is used when no user message exists to derive a
	// title from.
	DefaultTitle = "新的对话"

	// titleRuneLimit is the maximum title length in runes before
	// truncation. Counted in runes so Chinese titles are not cut
	// mid-character.
	titleRuneLimit = 18

	// RemoteIDPrefix marks session ids adopted from the backend.
	RemoteIDPrefix = "backend_"
)

// =============================================================================
// Model
// =============================================================================

// Message is one chat turn.
type Message struct {
	// Role is RoleUser or RoleAssistant.
	Role string `json:"role"`

	// Content is the message text. The open assistant message grows
	// incrementally while a stream is in flight.
	Content string `json:"content"`

	// Provider records which AI provider produced an assistant
	// message. Empty for user messages.
	Provider string `json:"provider,omitempty"`
}

// Session is one conversation with its ordered message list.
type Session struct {
	// ID is the list identity. Locally created sessions use
	// NewLocalID; sessions adopted from the backend use
	// "backend_<remote id>".
	ID string `json:"id"`

	// RemoteID is the backend's id for this session, empty until the
	// session has been created remotely.
	RemoteID string `json:"remoteId,omitempty"`

	// Title is derived from the first non-empty user message, or
	// DefaultTitle.
	Title string `json:"title"`

	// CreatedAt is a unix-milliseconds timestamp.
	CreatedAt int64 `json:"createdAt"`

	// Messages is the conversation in chronological order.
	Messages []Message `json:"messages"`
}

// HistoryEntry is a role/content pair in the wire shape the ask
// endpoint expects.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// =============================================================================
// Identifiers
// =============================================================================

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewLocalID returns a fresh local session id.
//
// The format is "<unix millis>-<6 random base36 chars>". Millisecond
// timestamps keep ids roughly sortable; the random suffix keeps two
// sessions created in the same millisecond distinct.
func NewLocalID() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(time.Now().UnixMilli(), 10))
	b.WriteByte('-')
	for i := 0; i < 6; i++ {
		b.WriteByte(base36Alphabet[rand.IntN(len(base36Alphabet))])
	}
	return b.String()
}

// RemoteLocalID returns the local id used for a session adopted from
// the backend.
func RemoteLocalID(remoteID string) string {
	return RemoteIDPrefix + remoteID
}

// =============================================================================
// Construction
// =============================================================================

// New returns a fresh, empty session with a local id and the default
// title.
func New() Session {
	return Session{
		ID:        NewLocalID(),
		Title:     DefaultTitle,
		CreatedAt: time.Now().UnixMilli(),
		Messages:  []Message{},
	}
}

// Clone returns a deep copy of the session. The message slice is
// copied so callers can hand clones across goroutine boundaries.
func (s Session) Clone() Session {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return out
}

// IsRemote reports whether the session has been created on the
// backend.
func (s Session) IsRemote() bool {
	return s.RemoteID != ""
}

// =============================================================================
// Title Derivation
// =============================================================================

// DeriveTitle derives a session title from its messages.
//
// The title is the first user message with non-blank content,
// truncated to 18 runes with a "..." suffix when longer. When no such
// message exists the fallback is returned.
func DeriveTitle(messages []Message, fallback string) string {
	for _, msg := range messages {
		if msg.Role != RoleUser {
			continue
		}
		text := strings.TrimSpace(msg.Content)
		if text == "" {
			continue
		}

		runes := []rune(text)
		if len(runes) > titleRuneLimit {
			return string(runes[:titleRuneLimit]) + "..."
		}
		return text
	}
	return fallback
}

// HistoryWindow returns the session's recent conversation in the wire
// shape the ask endpoint expects: the last `limit` messages with
// non-blank content, oldest first.
func (s Session) HistoryWindow(limit int) []HistoryEntry {
	filtered := make([]HistoryEntry, 0, len(s.Messages))
	for _, msg := range s.Messages {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		filtered = append(filtered, HistoryEntry{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered
}
