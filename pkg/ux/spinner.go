// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// =============================================================================
// Spinner
// =============================================================================

// spinnerFrames are braille dots, ~80ms per frame.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 80 * time.Millisecond

// Spinner shows an animated wait indicator on a single line. It covers
// the gap between sending a question and receiving the first token;
// the renderer stops it as soon as content starts streaming.
//
// Start and Stop are idempotent and safe for concurrent use.
type Spinner struct {
	w       io.Writer
	enabled bool

	mu      sync.Mutex
	message string
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSpinner creates a spinner writing to w. A disabled spinner is a
// no-op, used for plain and machine output.
func NewSpinner(w io.Writer, message string, enabled bool) *Spinner {
	return &Spinner{w: w, message: message, enabled: enabled}
}

// Start begins the animation.
func (s *Spinner) Start() {
	if !s.enabled {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run(s.stopCh, s.doneCh)
}

// Stop halts the animation and clears the line. Blocks until the
// spinner goroutine has exited, so the caller can write to the same
// line immediately after.
func (s *Spinner) Stop() {
	if !s.enabled {
		return
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// UpdateMessage changes the text shown next to the animation.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

func (s *Spinner) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-stopCh:
			// Clear the spinner line.
			fmt.Fprint(s.w, "\r\033[K")
			return
		case <-ticker.C:
			s.mu.Lock()
			message := s.message
			s.mu.Unlock()
			fmt.Fprintf(s.w, "\r\033[K%s %s", spinnerFrames[frame%len(spinnerFrames)], message)
			frame++
		}
	}
}
