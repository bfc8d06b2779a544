// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package persist

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhixueban/zhixue-cli/pkg/backend"
	"github.com/zhixueban/zhixue-cli/pkg/localstore"
	"github.com/zhixueban/zhixue-cli/pkg/session"
)

// =============================================================================
// Mocks & Helpers
// =============================================================================

type updateCall struct {
	remoteID string
	req      backend.UpdateSessionRequest
}

// mockSessionAPI scripts responses and records calls.
type mockSessionAPI struct {
	mu sync.Mutex

	listSessions []backend.RemoteSession
	listErr      error

	createResp *backend.RemoteSession
	createErr  error
	creates    []string

	// updateErrs is consumed one per UpdateSession call; nil entries
	// mean success. Calls beyond the slice succeed.
	updateErrs []error
	updates    []updateCall
}

func (m *mockSessionAPI) ListSessions(ctx context.Context, limit int) ([]backend.RemoteSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listSessions, m.listErr
}

func (m *mockSessionAPI) CreateSession(ctx context.Context, title string) (*backend.RemoteSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates = append(m.creates, title)
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.createResp, nil
}

func (m *mockSessionAPI) UpdateSession(ctx context.Context, remoteID string, req backend.UpdateSessionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, updateCall{remoteID: remoteID, req: req})
	if len(m.updateErrs) > 0 {
		err := m.updateErrs[0]
		m.updateErrs = m.updateErrs[1:]
		return err
	}
	return nil
}

func (m *mockSessionAPI) DeleteSession(ctx context.Context, remoteID string) error {
	return nil
}

func (m *mockSessionAPI) updateCalls() []updateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]updateCall(nil), m.updates...)
}

type fixture struct {
	store *session.Store
	api   *mockSessionAPI
	local *localstore.Store
	rec   *Reconciler

	mu       sync.Mutex
	identity string
}

func newFixture(t *testing.T, identity string) *fixture {
	t.Helper()

	local, err := localstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	f := &fixture{
		store:    session.NewStore(),
		api:      &mockSessionAPI{},
		local:    local,
		identity: identity,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.rec = New(f.store, f.api, f.local, f.currentIdentity, logger)
	f.rec.SetInflightClearDelay(10 * time.Millisecond)
	return f
}

func (f *fixture) currentIdentity() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity
}

func (f *fixture) setIdentity(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity = id
}

// seedMessages appends n user/assistant pairs to the active session.
func seedMessages(t *testing.T, st *session.Store, n int) string {
	t.Helper()

	id := st.ActiveID()
	for i := 0; i < n; i++ {
		require.NoError(t, st.AppendUserAndPlaceholder(id, "问题"+strconv.Itoa(i), "deepseek"))
		st.ApplyContentDelta(id, "回答"+strconv.Itoa(i))
	}
	return st.ActiveID()
}

func statusErr(code int) error {
	return &backend.StatusError{StatusCode: code}
}

// =============================================================================
// Local Strategy
// =============================================================================

func TestSaveSession_AnonymousWritesLocalBlob(t *testing.T) {
	f := newFixture(t, "")
	id := seedMessages(t, f.store, 1)

	f.rec.SaveSession(context.Background(), id, false)

	data, err := f.local.Get(context.Background(), LocalKey(""))
	require.NoError(t, err)
	assert.Contains(t, string(data), "问题0")
	assert.Empty(t, f.api.updateCalls(), "anonymous saves must not hit the backend")
}

func TestLocalKey_IdentitySuffix(t *testing.T) {
	assert.Equal(t, "zhixueban_chat_history", LocalKey(""))
	assert.Equal(t, "zhixueban_chat_history_u1", LocalKey("u1"))
}

// =============================================================================
// Remote Strategy
// =============================================================================

func TestSaveSession_RemoteUpdatesExistingSession(t *testing.T) {
	f := newFixture(t, "u1")
	id := seedMessages(t, f.store, 2)
	newID := f.store.AdoptRemote(id, "77")

	f.rec.SaveSession(context.Background(), newID, false)

	calls := f.api.updateCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "77", calls[0].remoteID)
	require.NotNil(t, calls[0].req.Title)
	assert.Equal(t, "问题0", *calls[0].req.Title)
	assert.Len(t, calls[0].req.Messages, 4)

	// Provider attribution travels with assistant messages.
	assert.Empty(t, calls[0].req.Messages[0].Provider)
	assert.Equal(t, "deepseek", calls[0].req.Messages[1].Provider)
}

func TestSaveSession_RemoteCreatesThenUpdates(t *testing.T) {
	f := newFixture(t, "u1")
	f.api.createResp = &backend.RemoteSession{ID: 5}
	id := seedMessages(t, f.store, 1)

	f.rec.SaveSession(context.Background(), id, false)

	require.Len(t, f.api.creates, 1)
	assert.Equal(t, "问题0", f.api.creates[0])

	// Local id adopted the backend form.
	assert.Equal(t, session.RemoteIDPrefix+"5", f.store.ActiveID())
	assert.Equal(t, "5", f.store.Active().RemoteID)

	calls := f.api.updateCalls()
	require.Len(t, calls, 1, "messages must follow the create")
	assert.Equal(t, "5", calls[0].remoteID)
}

func TestSaveSession_TruncatesToHundredMessages(t *testing.T) {
	f := newFixture(t, "u1")
	id := seedMessages(t, f.store, 60) // 120 messages
	newID := f.store.AdoptRemote(id, "9")

	f.rec.SaveSession(context.Background(), newID, false)

	calls := f.api.updateCalls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].req.Messages, 100)
	// The newest messages are kept.
	assert.Equal(t, "回答59", calls[0].req.Messages[99].Content)
}

func TestSaveSession_EmptySessionSkipped(t *testing.T) {
	f := newFixture(t, "u1")
	id := f.store.ActiveID()

	f.rec.SaveSession(context.Background(), id, false)

	assert.Empty(t, f.api.creates)
	assert.Empty(t, f.api.updateCalls())
}

// =============================================================================
// 413 / 404 Recovery
// =============================================================================

func TestSaveSession_PayloadTooLargeRetriesWithFifty(t *testing.T) {
	f := newFixture(t, "u1")
	id := seedMessages(t, f.store, 40) // 80 messages
	newID := f.store.AdoptRemote(id, "3")
	f.api.updateErrs = []error{statusErr(http.StatusRequestEntityTooLarge)}

	f.rec.SaveSession(context.Background(), newID, false)

	calls := f.api.updateCalls()
	require.Len(t, calls, 2, "exactly one retry")
	assert.Len(t, calls[0].req.Messages, 80)
	assert.Len(t, calls[1].req.Messages, 50)
	assert.Equal(t, "回答39", calls[1].req.Messages[49].Content)
}

func TestSaveSession_PayloadTooLargeNoRetryWhenSmall(t *testing.T) {
	f := newFixture(t, "u1")
	id := seedMessages(t, f.store, 5) // 10 messages, shrinking gains nothing
	newID := f.store.AdoptRemote(id, "3")
	f.api.updateErrs = []error{statusErr(http.StatusRequestEntityTooLarge)}

	f.rec.SaveSession(context.Background(), newID, false)

	assert.Len(t, f.api.updateCalls(), 1)
}

func TestSaveSession_RetryFailureIsFinal(t *testing.T) {
	f := newFixture(t, "u1")
	id := seedMessages(t, f.store, 40)
	newID := f.store.AdoptRemote(id, "3")
	f.api.updateErrs = []error{
		statusErr(http.StatusRequestEntityTooLarge),
		statusErr(http.StatusRequestEntityTooLarge),
	}

	f.rec.SaveSession(context.Background(), newID, false)

	assert.Len(t, f.api.updateCalls(), 2, "no second retry")
}

func TestSaveSession_NotFoundDefersToNextSave(t *testing.T) {
	f := newFixture(t, "u1")
	id := seedMessages(t, f.store, 1)
	newID := f.store.AdoptRemote(id, "8")
	f.api.updateErrs = []error{statusErr(http.StatusNotFound)}

	f.rec.SaveSession(context.Background(), newID, false)
	assert.Len(t, f.api.updateCalls(), 1)

	// Remote id is kept; the next forced save retries the update.
	assert.Equal(t, "8", f.store.Active().RemoteID)
	f.rec.SaveSession(context.Background(), newID, true)
	assert.Len(t, f.api.updateCalls(), 2)
}

// =============================================================================
// In-flight Deduplication
// =============================================================================

func TestSaveSession_DuplicateNonForcedDropped(t *testing.T) {
	f := newFixture(t, "u1")
	f.rec.SetInflightClearDelay(time.Hour) // keep the marker
	id := seedMessages(t, f.store, 1)
	newID := f.store.AdoptRemote(id, "2")

	f.rec.SaveSession(context.Background(), newID, false)
	f.rec.SaveSession(context.Background(), newID, false)

	assert.Len(t, f.api.updateCalls(), 1)
}

func TestSaveSession_ForcedBypassesDedup(t *testing.T) {
	f := newFixture(t, "u1")
	f.rec.SetInflightClearDelay(time.Hour)
	id := seedMessages(t, f.store, 1)
	newID := f.store.AdoptRemote(id, "2")

	f.rec.SaveSession(context.Background(), newID, false)
	f.rec.SaveSession(context.Background(), newID, true)

	assert.Len(t, f.api.updateCalls(), 2)
}

func TestSaveSession_MarkerClearsAfterDelay(t *testing.T) {
	f := newFixture(t, "u1")
	f.rec.SetInflightClearDelay(5 * time.Millisecond)
	id := seedMessages(t, f.store, 1)
	newID := f.store.AdoptRemote(id, "2")

	f.rec.SaveSession(context.Background(), newID, false)

	assert.Eventually(t, func() bool {
		f.rec.SaveSession(context.Background(), newID, false)
		return len(f.api.updateCalls()) >= 2
	}, time.Second, 10*time.Millisecond)
}

// =============================================================================
// Strategy Selection
// =============================================================================

func TestSaveSession_StrategyFollowsIdentityPerCall(t *testing.T) {
	f := newFixture(t, "")
	id := seedMessages(t, f.store, 1)

	// Anonymous: local only.
	f.rec.SaveSession(context.Background(), id, true)
	assert.Empty(t, f.api.creates)

	// User logs in mid-session: same reconciler now goes remote.
	f.setIdentity("u1")
	f.api.createResp = &backend.RemoteSession{ID: 1}
	f.rec.SaveSession(context.Background(), f.store.ActiveID(), true)
	assert.Len(t, f.api.creates, 1)
}
