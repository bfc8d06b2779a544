// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package persist reconciles the in-memory session store with durable
// storage.
//
// This file contains the startup loader: the inverse of the save
// strategies, with the same identity-based selection.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/zhixueban/zhixue-cli/pkg/localstore"
	"github.com/zhixueban/zhixue-cli/pkg/session"
)

// Load populates the session store from durable storage.
//
// Identity known: fetch recent remote sessions and map them into the
// local shape; when none exist, create one remotely so later saves
// have a session to update. When the backend is unreachable, fall
// back to local history rather than start blank.
//
// Anonymous: read the local history blob. Missing or corrupt history
// yields one fresh session.
//
// Load is idempotent per identity: repeated calls for an identity
// that has already been loaded are no-ops, so a login event can call
// it unconditionally.
//
// On every path the store ends non-empty with a valid active session.
func (r *Reconciler) Load(ctx context.Context) {
	identity := r.identity()

	r.mu.Lock()
	if r.loadedFor == nil {
		r.loadedFor = make(map[string]struct{})
	}
	if _, done := r.loadedFor[identity]; done {
		r.mu.Unlock()
		return
	}
	r.loadedFor[identity] = struct{}{}
	r.mu.Unlock()

	if identity != "" {
		if r.loadRemote(ctx) {
			return
		}
		// Remote unreachable: fall through to whatever local history
		// this identity has.
	}
	r.loadLocal(ctx, identity)
}

// loadRemote fetches recent sessions from the backend. Returns false
// when the backend could not serve the list.
func (r *Reconciler) loadRemote(ctx context.Context) bool {
	remote, err := r.api.ListSessions(ctx, remoteLoadLimit)
	if err != nil {
		r.logger.Warn("remote history load failed, falling back to local", "error", err)
		return false
	}

	if len(remote) == 0 {
		r.startRemoteSession(ctx)
		return true
	}

	sessions := make([]session.Session, 0, len(remote))
	for _, rs := range remote {
		s := session.Session{
			ID:        session.RemoteLocalID(rs.RemoteIDString()),
			RemoteID:  rs.RemoteIDString(),
			Title:     rs.Title,
			CreatedAt: parseRemoteTimestamp(rs.CreatedAt),
			Messages:  make([]session.Message, 0, len(rs.Messages)),
		}
		if s.Title == "" {
			s.Title = session.DefaultTitle
		}
		for _, m := range rs.Messages {
			s.Messages = append(s.Messages, session.Message{
				Role:     m.Role,
				Content:  m.Content,
				Provider: m.Provider,
			})
		}
		sessions = append(sessions, s)
	}

	r.store.ReplaceAll(sessions, sessions[0].ID)
	r.logger.Debug("remote history loaded", "sessions", len(sessions))
	return true
}

// startRemoteSession creates the first remote session for a user with
// no history. A create failure still leaves the store usable: the
// fresh local session gets adopted on its first successful save.
func (r *Reconciler) startRemoteSession(ctx context.Context) {
	fresh := session.New()

	created, err := r.api.CreateSession(ctx, fresh.Title)
	if err != nil {
		r.logger.Warn("initial remote session create failed", "error", err)
		r.store.ReplaceAll([]session.Session{fresh}, fresh.ID)
		return
	}

	remoteID := created.RemoteIDString()
	fresh.RemoteID = remoteID
	fresh.ID = session.RemoteLocalID(remoteID)
	r.store.ReplaceAll([]session.Session{fresh}, fresh.ID)
}

// parseRemoteTimestamp converts the backend's RFC 3339 createdAt into
// unix milliseconds. Unparseable or absent timestamps yield zero.
func parseRemoteTimestamp(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

// loadLocal reads the history blob for the identity from the local
// store.
func (r *Reconciler) loadLocal(ctx context.Context, identity string) {
	key := LocalKey(identity)

	data, err := r.local.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, localstore.ErrNotFound) {
			r.logger.Warn("local history load failed", "key", key, "error", err)
		}
		r.store.ReplaceAll(nil, "")
		return
	}

	var sessions []session.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		// Corrupt history: start over rather than crash-loop on it.
		r.logger.Warn("local history corrupt, starting fresh", "key", key, "error", err)
		r.store.ReplaceAll(nil, "")
		return
	}

	activeID := ""
	if len(sessions) > 0 {
		activeID = sessions[0].ID
	}
	r.store.ReplaceAll(sessions, activeID)
	r.logger.Debug("local history loaded", "key", key, "sessions", len(sessions))
}
