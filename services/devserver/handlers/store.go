// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the Zhixueban development stub server:
// the session persistence endpoints and a canned streaming chat
// endpoint, close enough to the production backend for the CLI to run
// against during development and in end-to-end tests.
package handlers

import (
	"errors"
	"sync"
	"time"

	"github.com/zhixueban/zhixue-cli/pkg/backend"
)

// errSessionNotFound maps to HTTP 404 in the handlers.
var errSessionNotFound = errors.New("session not found")

// =============================================================================
// In-Memory Session Store
// =============================================================================

// sessionStore holds sessions in memory, newest first. The stub
// server has no durability; restarting it is the supported way to
// reset state.
type sessionStore struct {
	mu       sync.Mutex
	nextID   int64
	order    []int64
	sessions map[int64]backend.RemoteSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		nextID:   1,
		sessions: make(map[int64]backend.RemoteSession),
	}
}

// List returns up to limit sessions, newest first. limit <= 0 returns
// all.
func (s *sessionStore) List(limit int) []backend.RemoteSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]backend.RemoteSession, 0, len(s.order))
	for _, id := range s.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, s.sessions[id])
	}
	return out
}

// Create adds an empty session with the given title.
func (s *sessionStore) Create(title string) backend.RemoteSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := backend.RemoteSession{
		ID:        s.nextID,
		Title:     title,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
	s.nextID++
	s.sessions[sess.ID] = sess
	s.order = append([]int64{sess.ID}, s.order...)
	return sess
}

// Update replaces the title and/or messages of a session. Nil request
// fields leave the stored value unchanged.
func (s *sessionStore) Update(id int64, req backend.UpdateSessionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return errSessionNotFound
	}
	if req.Title != nil {
		sess.Title = *req.Title
	}
	if req.Messages != nil {
		sess.Messages = req.Messages
	}
	s.sessions[id] = sess
	return nil
}

// Delete removes a session.
func (s *sessionStore) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return errSessionNotFound
	}
	delete(s.sessions, id)
	for i, ordered := range s.order {
		if ordered == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
