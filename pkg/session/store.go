// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session holds the chat session model and the ordered
// in-memory session store for the Zhixueban CLI.
//
// This file contains the Store, the single owner of the session list.
//
// Ordering:
//
//	The list is most-recent-first. New sessions are prepended and the
//	tail beyond MaxSessions is evicted, so the list doubles as an LRU
//	of conversations.
//
// Thread Safety:
//
//	All methods are safe for concurrent use. Reads return deep copies;
//	callers never hold references into the store's internal state.
//	Deltas arriving from a stream goroutine and reads from the render
//	loop may therefore interleave freely.
package session

import (
	"fmt"
	"strings"
	"sync"
)

// =============================================================================
// Store
// =============================================================================

// Store owns the ordered session list and the active-session pointer.
//
// A Store is never empty: construction, deletion, and ReplaceAll all
// guarantee at least one session exists and one session is active.
type Store struct {
	mu       sync.RWMutex
	sessions []Session
	activeID string
}

// NewStore creates a store holding one fresh, active session.
func NewStore() *Store {
	fresh := New()
	return &Store{
		sessions: []Session{fresh},
		activeID: fresh.ID,
	}
}

// =============================================================================
// Structural Operations
// =============================================================================

// StartNew prepends a fresh session, makes it active, and returns a
// copy of it. Sessions beyond MaxSessions are evicted from the tail.
func (st *Store) StartNew() Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	fresh := New()
	st.prependLocked(fresh)
	st.activeID = fresh.ID
	return fresh.Clone()
}

// Prepend inserts a session at the head of the list, evicting the
// tail beyond MaxSessions. The active session is unchanged unless it
// was evicted, in which case activation falls back to the head.
func (st *Store) Prepend(s Session) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.prependLocked(s.Clone())
	if st.indexLocked(st.activeID) < 0 {
		st.activeID = st.sessions[0].ID
	}
}

// prependLocked inserts at the head and trims to MaxSessions.
// Caller holds the write lock.
func (st *Store) prependLocked(s Session) {
	next := make([]Session, 0, len(st.sessions)+1)
	next = append(next, s)
	next = append(next, st.sessions...)
	if len(next) > MaxSessions {
		next = next[:MaxSessions]
	}
	st.sessions = next
}

// Delete removes the session with the given id and returns a copy of
// the session that is active afterwards.
//
// When the deleted session was active, activation falls back to the
// new head of the list; when the list would become empty, a fresh
// session is created so the store never empties.
func (st *Store) Delete(id string) Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	idx := st.indexLocked(id)
	if idx >= 0 {
		next := make([]Session, 0, len(st.sessions)-1)
		next = append(next, st.sessions[:idx]...)
		next = append(next, st.sessions[idx+1:]...)
		st.sessions = next
	}

	if len(st.sessions) == 0 {
		fresh := New()
		st.sessions = []Session{fresh}
		st.activeID = fresh.ID
	} else if st.indexLocked(st.activeID) < 0 {
		st.activeID = st.sessions[0].ID
	}

	return st.sessions[st.indexLocked(st.activeID)].Clone()
}

// ReplaceAll swaps in a new session list, for example after loading
// persisted history. The list is deep-copied and trimmed to
// MaxSessions; an empty input is replaced with one fresh session.
//
// activeID selects the active session; when it does not name a loaded
// session the head becomes active.
func (st *Store) ReplaceAll(sessions []Session, activeID string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	next := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		next = append(next, s.Clone())
		if len(next) == MaxSessions {
			break
		}
	}
	if len(next) == 0 {
		next = []Session{New()}
	}

	st.sessions = next
	st.activeID = activeID
	if st.indexLocked(st.activeID) < 0 {
		st.activeID = st.sessions[0].ID
	}
}

// =============================================================================
// Activation & Lookup
// =============================================================================

// ActiveID returns the id of the active session.
func (st *Store) ActiveID() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.activeID
}

// SetActive switches the active session.
func (st *Store) SetActive(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.indexLocked(id) < 0 {
		return fmt.Errorf("no session with id %q", id)
	}
	st.activeID = id
	return nil
}

// Active returns a copy of the active session.
func (st *Store) Active() Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[st.indexLocked(st.activeID)].Clone()
}

// Get returns a copy of the session with the given id.
func (st *Store) Get(id string) (Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	idx := st.indexLocked(id)
	if idx < 0 {
		return Session{}, false
	}
	return st.sessions[idx].Clone(), true
}

// Snapshot returns a deep copy of the whole list, most-recent-first.
// Persistence works from snapshots so saves never race mutations.
func (st *Store) Snapshot() []Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]Session, len(st.sessions))
	for i, s := range st.sessions {
		out[i] = s.Clone()
	}
	return out
}

// Len returns the number of sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// indexLocked returns the position of id, or -1. Caller holds a lock.
func (st *Store) indexLocked(id string) int {
	for i := range st.sessions {
		if st.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// Message Operations
// =============================================================================

// AppendUserAndPlaceholder appends the user's prompt and an empty
// assistant placeholder to the session, then re-derives the title.
//
// The placeholder is the message that subsequent content deltas grow;
// provider records which AI backend will fill it.
//
// A missing session returns an error rather than silently doing
// nothing: callers always create the session before asking, so a miss
// here is a caller bug worth surfacing, unlike the mid-stream races
// ApplyContentDelta tolerates.
func (st *Store) AppendUserAndPlaceholder(id, prompt, provider string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	idx := st.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("no session with id %q", id)
	}

	s := &st.sessions[idx]
	s.Messages = append(s.Messages,
		Message{Role: RoleUser, Content: prompt},
		Message{Role: RoleAssistant, Content: "", Provider: provider},
	)
	s.Title = DeriveTitle(s.Messages, DefaultTitle)
	return nil
}

// ApplyContentDelta appends a text delta to the session's open
// assistant message.
//
// The id is the session captured when the stream was started, NOT the
// currently active session: switching conversations mid-stream must
// not redirect tokens into the wrong session. A missing session (for
// example one deleted mid-stream) makes this a silent no-op.
func (st *Store) ApplyContentDelta(id, delta string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	idx := st.indexLocked(id)
	if idx < 0 {
		return
	}

	s := &st.sessions[idx]
	if len(s.Messages) == 0 {
		return
	}
	last := &s.Messages[len(s.Messages)-1]
	if last.Role != RoleAssistant {
		return
	}
	last.Content += delta
}

// ReplaceLastContent overwrites the content of the session's last
// assistant message, discarding any partial text. Used when the
// backend reports an in-band error after some tokens already arrived.
//
// Returns false when the session is missing or its last message is
// not an assistant message.
func (st *Store) ReplaceLastContent(id, content string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.replaceLastLocked(id, content, false)
}

// ReplaceOpenMessage sets the content of the session's open assistant
// message only when that message is still the empty placeholder.
//
// Transport failures use this: if tokens were already rendered the
// partial answer is worth more than a generic failure notice.
func (st *Store) ReplaceOpenMessage(id, content string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.replaceLastLocked(id, content, true)
}

// replaceLastLocked overwrites the last assistant message's content.
// Caller holds the write lock.
func (st *Store) replaceLastLocked(id, content string, onlyIfEmpty bool) bool {
	idx := st.indexLocked(id)
	if idx < 0 {
		return false
	}

	s := &st.sessions[idx]
	if len(s.Messages) == 0 {
		return false
	}
	last := &s.Messages[len(s.Messages)-1]
	if last.Role != RoleAssistant {
		return false
	}
	if onlyIfEmpty && strings.TrimSpace(last.Content) != "" {
		return false
	}
	last.Content = content
	return true
}

// AdoptRemote records that the backend created the session, renaming
// its local id to the backend-derived form.
//
// Returns the new local id. A missing session returns the empty
// string.
func (st *Store) AdoptRemote(localID, remoteID string) string {
	st.mu.Lock()
	defer st.mu.Unlock()

	idx := st.indexLocked(localID)
	if idx < 0 {
		return ""
	}

	s := &st.sessions[idx]
	s.RemoteID = remoteID
	s.ID = RemoteLocalID(remoteID)
	if st.activeID == localID {
		st.activeID = s.ID
	}
	return s.ID
}

// History returns the active conversation window for the given
// session in wire shape. See Session.HistoryWindow.
func (st *Store) History(id string, limit int) []HistoryEntry {
	st.mu.RLock()
	defer st.mu.RUnlock()

	idx := st.indexLocked(id)
	if idx < 0 {
		return nil
	}
	return st.sessions[idx].HistoryWindow(limit)
}
