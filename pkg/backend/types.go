// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package backend is the HTTP client for the Zhixueban backend API.
//
// This file defines the wire types shared by the client and the
// development stub server.
package backend

import (
	"strconv"

	"github.com/zhixueban/zhixue-cli/pkg/session"
)

// =============================================================================
// Ask Endpoint
// =============================================================================

// AskRequest is the body of POST /api/v1/ai/ask/stream.
type AskRequest struct {
	// Prompt is the learner's question.
	Prompt string `json:"prompt"`

	// Provider selects the AI provider (deepseek, wenxin, ...).
	// Empty lets the backend choose.
	Provider string `json:"provider,omitempty"`

	// History is the recent conversation window, oldest first.
	History []session.HistoryEntry `json:"history,omitempty"`
}

// =============================================================================
// Session Endpoints
// =============================================================================

// RemoteMessage is one message in the backend's session shape.
// Provider is absent for user messages and for answers from providers
// that predate per-message attribution.
type RemoteMessage struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Provider string `json:"provider,omitempty"`
}

// RemoteSession is a session as the backend stores it.
type RemoteSession struct {
	// ID is the backend's numeric session id.
	ID int64 `json:"id"`

	// Title is the display title.
	Title string `json:"title"`

	// CreatedAt is an RFC 3339 timestamp.
	CreatedAt string `json:"createdAt,omitempty"`

	// Messages is the stored conversation, oldest first. The list
	// endpoint includes it; mutations send it in UpdateSessionRequest.
	Messages []RemoteMessage `json:"messages,omitempty"`
}

// RemoteIDString returns the session id in the form local ids embed.
func (s RemoteSession) RemoteIDString() string {
	return strconv.FormatInt(s.ID, 10)
}

// ListSessionsResponse is the body of GET /api/v1/chat/sessions.
type ListSessionsResponse struct {
	Sessions []RemoteSession `json:"sessions"`
}

// CreateSessionRequest is the body of POST /api/v1/chat/sessions.
type CreateSessionRequest struct {
	Title string `json:"title"`
}

// CreateSessionResponse is the body of POST /api/v1/chat/sessions.
// The backend wraps the created session under a "session" key.
type CreateSessionResponse struct {
	Session RemoteSession `json:"session"`
}

// UpdateSessionRequest is the body of PUT /api/v1/chat/sessions/{id}.
// Nil fields are left unchanged by the backend.
type UpdateSessionRequest struct {
	Title    *string         `json:"title,omitempty"`
	Messages []RemoteMessage `json:"messages,omitempty"`
}

// =============================================================================
// Provider Endpoint
// =============================================================================

// ProvidersResponse is the body of GET /api/v1/ai/providers.
type ProvidersResponse struct {
	// Providers lists the configured AI providers.
	Providers []string `json:"providers"`

	// Current is the backend's default provider.
	Current string `json:"current,omitempty"`
}

// FallbackProviders is the provider list assumed when the backend
// cannot be asked. Mirrors the platform's configured providers.
var FallbackProviders = []string{"deepseek", "wenxin", "xinghuo", "chatglm", "moonshot"}
