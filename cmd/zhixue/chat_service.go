// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package main contains the Zhixueban CLI.
//
// This file implements the chat service: one Send call covers the full
// question/answer exchange — history capture, the streaming request,
// applying deltas to the session store, and the forced save when the
// stream ends.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zhixueban/zhixue-cli/pkg/backend"
	"github.com/zhixueban/zhixue-cli/pkg/persist"
	"github.com/zhixueban/zhixue-cli/pkg/session"
	"github.com/zhixueban/zhixue-cli/pkg/stream"
	"github.com/zhixueban/zhixue-cli/pkg/ux"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// historyWindowSize is how many recent messages accompany a
	// question as context.
	historyWindowSize = 20

	// errorPrefix marks in-band provider errors in the transcript.
	errorPrefix = "❌ "

	// transportErrorMessage replaces an empty answer placeholder when
	// the backend cannot be reached at all.
	transportErrorMessage = "❌ 请求失败，请检查后端服务是否启动"
)

// =============================================================================
// ChatService
// =============================================================================

// ChatService turns one question into a streamed answer.
//
// The answer streams into the session that was active when Send was
// called: deltas are keyed by that captured session id, so switching
// sessions mid-answer never leaks tokens into the wrong conversation.
type ChatService struct {
	store    *session.Store
	chat     backend.ChatAPI
	consumer stream.Consumer
	saver    *persist.Saver
	renderer *ux.ChatRenderer
	logger   *slog.Logger

	mu       sync.Mutex
	provider string
}

// NewChatService wires the chat service.
func NewChatService(
	store *session.Store,
	chat backend.ChatAPI,
	saver *persist.Saver,
	renderer *ux.ChatRenderer,
	provider string,
	logger *slog.Logger,
) *ChatService {
	return &ChatService{
		store:    store,
		chat:     chat,
		consumer: stream.NewConsumerWithLogger(stream.NewFrameParser(), logger),
		saver:    saver,
		renderer: renderer,
		provider: provider,
		logger:   logger,
	}
}

// Provider returns the currently selected AI provider.
func (s *ChatService) Provider() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

// SetProvider switches the AI provider for subsequent questions.
func (s *ChatService) SetProvider(provider string) {
	s.mu.Lock()
	s.provider = provider
	s.mu.Unlock()
}

// Send asks one question and streams the answer into the active
// session.
//
// The history window is captured before the question is appended, so
// the question itself is not duplicated into its own context. Errors
// are already rendered and recorded in the transcript when Send
// returns; the returned error is for logging.
func (s *ChatService) Send(ctx context.Context, prompt string) error {
	sessionID := s.store.ActiveID()
	provider := s.Provider()

	history := s.store.History(sessionID, historyWindowSize)
	if err := s.store.AppendUserAndPlaceholder(sessionID, prompt, provider); err != nil {
		return fmt.Errorf("append question: %w", err)
	}

	// Debounced saves pause while tokens stream; the terminal paths
	// below save explicitly.
	s.saver.SetStreaming(true)
	defer s.saver.SetStreaming(false)

	s.renderer.BeginAnswer(displayProvider(provider))

	body, err := s.chat.AskStream(ctx, backend.AskRequest{
		Prompt:   prompt,
		Provider: provider,
		History:  history,
	})
	if err != nil {
		s.failTransport(ctx, sessionID)
		return fmt.Errorf("open answer stream: %w", err)
	}
	defer body.Close()

	inBandError := false
	err = s.consumer.Consume(ctx, body, func(ev stream.Event) error {
		switch ev.Type {
		case stream.EventTypeContent:
			s.store.ApplyContentDelta(sessionID, ev.Content)
			s.renderer.Token(ev.Content)
		case stream.EventTypeError:
			inBandError = true
			msg := errorPrefix + ev.Content
			s.store.ReplaceLastContent(sessionID, msg)
			s.renderer.FailAnswer(msg)
		}
		return nil
	})
	if err != nil {
		s.failTransport(ctx, sessionID)
		return fmt.Errorf("consume answer stream: %w", err)
	}

	if !inBandError {
		s.renderer.EndAnswer()
	}
	s.saver.Flush(ctx, sessionID)
	return nil
}

// failTransport records a connection failure in the transcript and
// saves what the session has so far. Only an untouched placeholder is
// overwritten; partial answers stay.
func (s *ChatService) failTransport(ctx context.Context, sessionID string) {
	s.renderer.FailAnswer(transportErrorMessage)
	s.store.ReplaceOpenMessage(sessionID, transportErrorMessage)
	s.saver.Flush(ctx, sessionID)
}

// displayProvider names the provider for the answer header.
func displayProvider(provider string) string {
	if provider == "" {
		return "自动"
	}
	return provider
}
