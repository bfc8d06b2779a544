// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package persist reconciles the in-memory session store with durable
// storage.
//
// Two backing stores exist and the choice between them is made fresh
// on every save, from the identity known at that moment:
//
//   - Identity known: the session goes to the backend's session API.
//   - Anonymous: the whole session list goes to the local BadgerDB
//     store, under a stable history key.
//
// Persistence is best effort. A failed save is logged and the next
// trigger retries; nothing here ever surfaces an error into the chat
// path, because losing a save must not lose the conversation on
// screen.
package persist

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/zhixueban/zhixue-cli/pkg/backend"
	"github.com/zhixueban/zhixue-cli/pkg/localstore"
	"github.com/zhixueban/zhixue-cli/pkg/session"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// localKeyBase is the history key in the local store. An identity
	// suffix keeps per-user history separate on shared machines.
	localKeyBase = "zhixueban_chat_history"

	// remoteMessageLimit truncates a session to its most recent
	// messages before a remote save.
	remoteMessageLimit = 100

	// retryMessageLimit is the tighter window used for the single
	// retry after a 413 response.
	retryMessageLimit = 50

	// defaultInflightClearDelay is how long a completed save keeps
	// its in-flight marker, absorbing triggers fired during the save.
	defaultInflightClearDelay = 2 * time.Second

	// remoteLoadLimit caps how many sessions are fetched on startup.
	remoteLoadLimit = 20
)

// LocalKey returns the local-store history key for an identity.
// Anonymous history uses the bare base key.
func LocalKey(identity string) string {
	if identity == "" {
		return localKeyBase
	}
	return localKeyBase + "_" + identity
}

// =============================================================================
// Reconciler
// =============================================================================

// IdentityProvider reports the current user identity, or "" when the
// user is anonymous. Called on every save so a mid-session login
// switches strategy without restart.
type IdentityProvider func() string

// SessionSaver is the surface the debounce layer and the chat service
// depend on.
type SessionSaver interface {
	// SaveSession persists the session with the given store id.
	//
	// force bypasses in-flight deduplication; terminal saves (stream
	// done, teardown) use it so they are never dropped.
	SaveSession(ctx context.Context, id string, force bool)
}

// Reconciler implements SessionSaver over the remote API and the
// local store.
//
// Thread Safety: safe for concurrent use.
type Reconciler struct {
	store    *session.Store
	api      backend.SessionAPI
	local    *localstore.Store
	identity IdentityProvider
	logger   *slog.Logger

	// clearDelay is configurable so tests don't wait two seconds.
	clearDelay time.Duration

	mu        sync.Mutex
	inflight  map[string]struct{}
	loadedFor map[string]struct{}
}

// New creates a reconciler.
//
// Parameters:
//   - store: The in-memory session store to snapshot from.
//   - api: The backend session API. Used when an identity is known.
//   - local: The durable local store. Used when anonymous.
//   - identity: Reports the current user identity per call.
//   - logger: Destination for save failures and skips.
func New(store *session.Store, api backend.SessionAPI, local *localstore.Store, identity IdentityProvider, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:      store,
		api:        api,
		local:      local,
		identity:   identity,
		logger:     logger,
		clearDelay: defaultInflightClearDelay,
		inflight:   make(map[string]struct{}),
	}
}

// SetInflightClearDelay overrides how long completed saves keep their
// in-flight marker. Test hook.
func (r *Reconciler) SetInflightClearDelay(d time.Duration) {
	r.clearDelay = d
}

// SaveSession persists one session, choosing the backing store from
// the identity known right now.
func (r *Reconciler) SaveSession(ctx context.Context, id string, force bool) {
	if r.identity() != "" {
		r.saveRemote(ctx, id, force)
		return
	}
	r.saveLocal(ctx)
}

// =============================================================================
// Local Strategy
// =============================================================================

// saveLocal writes the whole session list as one JSON blob.
//
// Local saves are cheap and idempotent, so they skip the in-flight
// bookkeeping entirely.
func (r *Reconciler) saveLocal(ctx context.Context) {
	snapshot := r.store.Snapshot()

	data, err := json.Marshal(snapshot)
	if err != nil {
		r.logger.Error("marshal local history failed", "error", err)
		return
	}

	key := LocalKey(r.identity())
	if err := r.local.Put(ctx, key, data); err != nil {
		r.logger.Warn("local history save failed", "key", key, "error", err)
		return
	}

	r.logger.Debug("local history saved", "key", key, "sessions", len(snapshot))
}

// =============================================================================
// Remote Strategy
// =============================================================================

// saveRemote persists a single session through the backend API.
func (r *Reconciler) saveRemote(ctx context.Context, id string, force bool) {
	s, ok := r.store.Get(id)
	if !ok {
		r.logger.Debug("skipping save of missing session", "session_id", id)
		return
	}
	if len(s.Messages) == 0 {
		// Nothing worth a round trip yet.
		return
	}

	// Dedup key: the remote identity when known, else the local id.
	// Both forms of the same session collapse onto one marker.
	dedupKey := s.RemoteID
	if dedupKey == "" {
		dedupKey = s.ID
	}

	if !r.markInflight(dedupKey, force) {
		r.logger.Debug("save already in flight, skipping", "session_id", id)
		return
	}
	defer r.scheduleClear(dedupKey)

	if s.IsRemote() {
		r.updateRemote(ctx, s, remoteWireMessages(s, remoteMessageLimit))
		return
	}
	r.createRemote(ctx, s)
}

// createRemote creates the session on the backend, adopts the remote
// id, and pushes the messages with a follow-up update.
func (r *Reconciler) createRemote(ctx context.Context, s session.Session) {
	created, err := r.api.CreateSession(ctx, s.Title)
	if err != nil {
		r.logger.Warn("remote session create failed", "session_id", s.ID, "error", err)
		return
	}

	remoteID := created.RemoteIDString()
	newID := r.store.AdoptRemote(s.ID, remoteID)
	if newID == "" {
		// Session vanished while the create was in flight.
		r.logger.Debug("created session no longer exists locally", "remote_id", remoteID)
		return
	}

	s.RemoteID = remoteID
	r.updateRemote(ctx, s, remoteWireMessages(s, remoteMessageLimit))
}

// updateRemote PUTs title and messages, handling the two recoverable
// failures:
//
//	404: the session was deleted on another device. Warn and keep the
//	     remote id; the next save retries.
//	413: the payload exceeded the backend's limit. Retry once with a
//	     tighter message window, but only when shrinking actually
//	     removes something.
func (r *Reconciler) updateRemote(ctx context.Context, s session.Session, messages []backend.RemoteMessage) {
	title := s.Title
	err := r.api.UpdateSession(ctx, s.RemoteID, backend.UpdateSessionRequest{
		Title:    &title,
		Messages: messages,
	})
	if err == nil {
		r.logger.Debug("remote session saved", "remote_id", s.RemoteID, "messages", len(messages))
		return
	}

	switch {
	case backend.IsNotFound(err):
		r.logger.Warn("remote session missing, will retry on next save", "remote_id", s.RemoteID)

	case backend.IsPayloadTooLarge(err) && len(messages) > retryMessageLimit:
		r.logger.Warn("remote save too large, retrying with recent messages only",
			"remote_id", s.RemoteID,
			"messages", len(messages),
			"retry_messages", retryMessageLimit,
		)
		retryErr := r.api.UpdateSession(ctx, s.RemoteID, backend.UpdateSessionRequest{
			Title:    &title,
			Messages: messages[len(messages)-retryMessageLimit:],
		})
		if retryErr != nil {
			r.logger.Warn("remote save retry failed", "remote_id", s.RemoteID, "error", retryErr)
		}

	default:
		r.logger.Warn("remote session save failed", "remote_id", s.RemoteID, "error", err)
	}
}

// remoteWireMessages converts a session's tail to the wire shape.
func remoteWireMessages(s session.Session, limit int) []backend.RemoteMessage {
	msgs := s.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]backend.RemoteMessage, len(msgs))
	for i, m := range msgs {
		out[i] = backend.RemoteMessage{
			Role:     m.Role,
			Content:  m.Content,
			Provider: m.Provider,
		}
	}
	return out
}

// =============================================================================
// In-flight Bookkeeping
// =============================================================================

// markInflight claims the dedup key. Returns false when a non-forced
// save finds the key already claimed.
func (r *Reconciler) markInflight(key string, force bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.inflight[key]; busy && !force {
		return false
	}
	r.inflight[key] = struct{}{}
	return true
}

// scheduleClear releases the dedup key after the configured delay.
// The delay absorbs the burst of triggers a finished stream fires
// (done event, render settle, debounce) into one save.
func (r *Reconciler) scheduleClear(key string) {
	time.AfterFunc(r.clearDelay, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.inflight, key)
	})
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ SessionSaver = (*Reconciler)(nil)
