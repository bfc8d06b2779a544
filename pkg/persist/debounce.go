// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package persist reconciles the in-memory session store with durable
// storage.
//
// This file contains the debounced save scheduler.
//
// Debounce semantics:
//
//	Background triggers (a message landed, a title changed) are
//	coalesced: a save runs only after the trigger stream has been
//	quiet for the debounce window. Triggers arriving while a stream
//	is in flight are dropped outright, because every stream already
//	ends in a forced flush; saving half-grown messages buys nothing.
//
//	Flush bypasses all of this: terminal paths (stream done, stream
//	error, teardown, SIGINT) persist immediately and forced.
package persist

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// defaultDebounce is the quiet period before a background save runs.
const defaultDebounce = 2 * time.Second

// Saver schedules debounced background saves on top of a
// SessionSaver.
//
// Thread Safety: safe for concurrent use after Start.
type Saver struct {
	saver    SessionSaver
	delay    time.Duration
	logger   *slog.Logger
	streamin atomic.Bool

	triggerCh chan string
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewSaver creates a debounced saver with the default 2-second
// window. Call Start to begin scheduling and Stop to halt it.
func NewSaver(saver SessionSaver, logger *slog.Logger) *Saver {
	return NewSaverWithDelay(saver, defaultDebounce, logger)
}

// NewSaverWithDelay creates a saver with an explicit debounce window.
// Test hook.
func NewSaverWithDelay(saver SessionSaver, delay time.Duration, logger *slog.Logger) *Saver {
	return &Saver{
		saver:     saver,
		delay:     delay,
		logger:    logger,
		triggerCh: make(chan string, 16),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the scheduling goroutine.
func (s *Saver) Start() {
	go s.run()
}

// Stop halts scheduling and waits for the goroutine to exit. Pending
// debounced work is discarded; callers needing a final save should
// Flush before Stop.
func (s *Saver) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// SetStreaming marks whether a response stream is currently in
// flight. While true, debounced saves are skipped.
func (s *Saver) SetStreaming(streaming bool) {
	s.streamin.Store(streaming)
}

// Trigger requests a background save of the given session. Triggers
// within the debounce window coalesce; only the most recent session
// id is kept.
func (s *Saver) Trigger(id string) {
	select {
	case s.triggerCh <- id:
	default:
		// The channel is saturated with triggers that will coalesce
		// anyway.
	}
}

// Flush saves the session immediately and forced, bypassing debounce,
// the streaming gate, and in-flight dedup.
func (s *Saver) Flush(ctx context.Context, id string) {
	s.saver.SaveSession(ctx, id, true)
}

// run is the scheduling loop.
func (s *Saver) run() {
	defer close(s.doneCh)

	timer := time.NewTimer(s.delay)
	if !timer.Stop() {
		<-timer.C
	}

	var pending string
	armed := false

	for {
		select {
		case <-s.stopCh:
			if armed && !timer.Stop() {
				<-timer.C
			}
			return

		case id := <-s.triggerCh:
			pending = id
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(s.delay)
			armed = true

		case <-timer.C:
			armed = false
			if s.streamin.Load() {
				// The stream's terminal flush will cover this.
				s.logger.Debug("skipping debounced save during stream", "session_id", pending)
				continue
			}
			s.saver.SaveSession(context.Background(), pending, false)
		}
	}
}
