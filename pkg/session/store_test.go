// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"strconv"
	"testing"
)

func TestNewStore_NeverEmpty(t *testing.T) {
	st := NewStore()
	if st.Len() != 1 {
		t.Fatalf("new store has %d sessions, want 1", st.Len())
	}
	active := st.Active()
	if active.Title != DefaultTitle {
		t.Errorf("fresh session title = %q, want %q", active.Title, DefaultTitle)
	}
}

func TestStartNew_PrependsAndActivates(t *testing.T) {
	st := NewStore()
	first := st.Active()

	second := st.StartNew()

	if st.ActiveID() != second.ID {
		t.Errorf("active id = %q, want new session %q", st.ActiveID(), second.ID)
	}
	snap := st.Snapshot()
	if len(snap) != 2 || snap[0].ID != second.ID || snap[1].ID != first.ID {
		t.Errorf("list should be most-recent-first, got ids %q, %q", snap[0].ID, snap[1].ID)
	}
}

func TestPrepend_EvictsBeyondCap(t *testing.T) {
	st := NewStore()

	// Push well past the cap, as a long-lived client would.
	var ids []string
	for i := 0; i < 25; i++ {
		s := New()
		s.ID = "s-" + strconv.Itoa(i)
		ids = append(ids, s.ID)
		st.Prepend(s)
	}

	if st.Len() != MaxSessions {
		t.Fatalf("store holds %d sessions, want cap %d", st.Len(), MaxSessions)
	}

	snap := st.Snapshot()
	if snap[0].ID != ids[len(ids)-1] {
		t.Errorf("head = %q, want newest %q", snap[0].ID, ids[len(ids)-1])
	}
	// The initial fresh session and the oldest prepends were evicted.
	if _, ok := st.Get(ids[0]); ok {
		t.Errorf("oldest session %q should have been evicted", ids[0])
	}
}

func TestDelete_ActiveFallsBackToHead(t *testing.T) {
	st := NewStore()
	first := st.Active()
	second := st.StartNew()

	active := st.Delete(second.ID)

	if active.ID != first.ID {
		t.Errorf("after deleting active, active = %q, want head %q", active.ID, first.ID)
	}
	if st.Len() != 1 {
		t.Errorf("store holds %d sessions, want 1", st.Len())
	}
}

func TestDelete_LastSessionYieldsFresh(t *testing.T) {
	st := NewStore()
	only := st.Active()

	active := st.Delete(only.ID)

	if active.ID == only.ID {
		t.Error("deleted session is still active")
	}
	if st.Len() != 1 {
		t.Errorf("store holds %d sessions, want a fresh one", st.Len())
	}
	if active.Title != DefaultTitle || len(active.Messages) != 0 {
		t.Errorf("replacement should be a fresh session, got %+v", active)
	}
}

func TestDelete_InactiveKeepsActive(t *testing.T) {
	st := NewStore()
	first := st.Active()
	second := st.StartNew()

	st.Delete(first.ID)

	if st.ActiveID() != second.ID {
		t.Errorf("active changed to %q, want %q", st.ActiveID(), second.ID)
	}
}

func TestAppendUserAndPlaceholder_DerivesTitle(t *testing.T) {
	st := NewStore()
	id := st.ActiveID()

	if err := st.AppendUserAndPlaceholder(id, "如何求导数？", "deepseek"); err != nil {
		t.Fatalf("AppendUserAndPlaceholder: %v", err)
	}

	s := st.Active()
	if len(s.Messages) != 2 {
		t.Fatalf("session has %d messages, want 2", len(s.Messages))
	}
	if s.Messages[0].Role != RoleUser || s.Messages[0].Content != "如何求导数？" {
		t.Errorf("user message = %+v", s.Messages[0])
	}
	if s.Messages[1].Role != RoleAssistant || s.Messages[1].Content != "" {
		t.Errorf("placeholder = %+v", s.Messages[1])
	}
	if s.Messages[1].Provider != "deepseek" {
		t.Errorf("placeholder provider = %q", s.Messages[1].Provider)
	}
	if s.Title != "如何求导数？" {
		t.Errorf("title = %q", s.Title)
	}
}

func TestAppendUserAndPlaceholder_UnknownSessionErrors(t *testing.T) {
	st := NewStore()

	if err := st.AppendUserAndPlaceholder("no-such-session", "q", ""); err == nil {
		t.Error("expected an error for an unknown session id")
	}
	if len(st.Active().Messages) != 0 {
		t.Error("active session must stay untouched")
	}
}

func TestApplyContentDelta_OrderedAccumulation(t *testing.T) {
	st := NewStore()
	id := st.ActiveID()
	if err := st.AppendUserAndPlaceholder(id, "q", "deepseek"); err != nil {
		t.Fatal(err)
	}

	for _, delta := range []string{"导数", "描述", "变化率"} {
		st.ApplyContentDelta(id, delta)
	}

	s := st.Active()
	got := s.Messages[len(s.Messages)-1].Content
	if got != "导数描述变化率" {
		t.Errorf("accumulated content = %q", got)
	}
}

func TestApplyContentDelta_TargetsCapturedSessionNotActive(t *testing.T) {
	st := NewStore()
	streamID := st.ActiveID()
	if err := st.AppendUserAndPlaceholder(streamID, "q", "deepseek"); err != nil {
		t.Fatal(err)
	}

	// User switches to a new conversation while tokens still arrive.
	other := st.StartNew()
	st.ApplyContentDelta(streamID, "late token")

	target, _ := st.Get(streamID)
	if target.Messages[len(target.Messages)-1].Content != "late token" {
		t.Error("delta did not reach the originating session")
	}
	switched, _ := st.Get(other.ID)
	if len(switched.Messages) != 0 {
		t.Errorf("delta leaked into the newly active session: %+v", switched.Messages)
	}
}

func TestApplyContentDelta_MissingSessionIsNoop(t *testing.T) {
	st := NewStore()
	st.ApplyContentDelta("gone", "delta") // must not panic
}

func TestReplaceOpenMessage_OnlyWhenPlaceholderEmpty(t *testing.T) {
	st := NewStore()
	id := st.ActiveID()
	if err := st.AppendUserAndPlaceholder(id, "q", "deepseek"); err != nil {
		t.Fatal(err)
	}

	if !st.ReplaceOpenMessage(id, "❌ 请求失败，请检查后端服务是否启动") {
		t.Fatal("expected replacement of the empty placeholder")
	}

	// Once content exists the placeholder is no longer open.
	if st.ReplaceOpenMessage(id, "second replacement") {
		t.Error("non-empty message should not be replaced")
	}

	s := st.Active()
	if got := s.Messages[len(s.Messages)-1].Content; got != "❌ 请求失败，请检查后端服务是否启动" {
		t.Errorf("placeholder content = %q", got)
	}
}

func TestReplaceLastContent_OverwritesPartial(t *testing.T) {
	st := NewStore()
	id := st.ActiveID()
	if err := st.AppendUserAndPlaceholder(id, "q", "deepseek"); err != nil {
		t.Fatal(err)
	}
	st.ApplyContentDelta(id, "partial answer")

	if !st.ReplaceLastContent(id, "❌ AI服务暂时不可用") {
		t.Fatal("expected replacement to succeed")
	}
	s := st.Active()
	if got := s.Messages[len(s.Messages)-1].Content; got != "❌ AI服务暂时不可用" {
		t.Errorf("content = %q", got)
	}
}

func TestAdoptRemote_RenamesAndTracksActive(t *testing.T) {
	st := NewStore()
	localID := st.ActiveID()

	newID := st.AdoptRemote(localID, "42")

	if newID != RemoteIDPrefix+"42" {
		t.Errorf("adopted id = %q", newID)
	}
	if st.ActiveID() != newID {
		t.Errorf("active id = %q, want %q", st.ActiveID(), newID)
	}
	s := st.Active()
	if s.RemoteID != "42" {
		t.Errorf("remote id = %q", s.RemoteID)
	}
	if _, ok := st.Get(localID); ok {
		t.Error("old local id should no longer resolve")
	}
}

func TestReplaceAll_EmptyInputYieldsFresh(t *testing.T) {
	st := NewStore()
	st.ReplaceAll(nil, "")

	if st.Len() != 1 {
		t.Fatalf("store holds %d sessions, want 1 fresh", st.Len())
	}
}

func TestReplaceAll_TrimsToCapAndActivates(t *testing.T) {
	var loaded []Session
	for i := 0; i < 30; i++ {
		s := New()
		s.ID = "loaded-" + strconv.Itoa(i)
		loaded = append(loaded, s)
	}

	st := NewStore()
	st.ReplaceAll(loaded, "loaded-3")

	if st.Len() != MaxSessions {
		t.Errorf("store holds %d sessions, want %d", st.Len(), MaxSessions)
	}
	if st.ActiveID() != "loaded-3" {
		t.Errorf("active id = %q", st.ActiveID())
	}

	st.ReplaceAll(loaded[:2], "missing")
	if st.ActiveID() != "loaded-0" {
		t.Errorf("unknown active id should fall back to head, got %q", st.ActiveID())
	}
}

func TestSnapshot_IsIsolated(t *testing.T) {
	st := NewStore()
	id := st.ActiveID()
	if err := st.AppendUserAndPlaceholder(id, "q", "deepseek"); err != nil {
		t.Fatal(err)
	}

	snap := st.Snapshot()
	snap[0].Messages[0].Content = "mutated"

	if st.Active().Messages[0].Content != "q" {
		t.Error("mutating a snapshot leaked into the store")
	}
}
