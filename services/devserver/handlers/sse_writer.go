// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/zhixueban/zhixue-cli/pkg/stream"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter writes answer frames in the wire format the CLI consumes:
//
//	data: {"type":"content","content":"..."}
//	data: [DONE]
//
// Each frame is flushed immediately so tokens reach the client as they
// are produced rather than at response end.
//
// Implementations must be safe for concurrent use; the chat handler
// may interleave keep-alives with content from another goroutine.
type SSEWriter interface {
	// WriteContent writes one content frame.
	WriteContent(content string) error

	// WriteError writes an in-band error frame. The stream should be
	// finished with WriteDone afterwards.
	WriteError(msg string) error

	// WriteDone writes the [DONE] sentinel. Call once, last.
	WriteDone() error

	// WriteKeepAlive writes an SSE comment to keep the connection
	// alive through proxies. Ignored by clients.
	WriteKeepAlive() error
}

// =============================================================================
// Implementation
// =============================================================================

// sseWriter wraps an http.ResponseWriter with per-frame flushing.
type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewSSEWriter creates an SSEWriter over w. The caller must have set
// SSE headers first (SetSSEHeaders) and w must support http.Flusher.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

func (w *sseWriter) WriteContent(content string) error {
	return w.writeEvent(stream.Event{Type: stream.EventTypeContent, Content: content})
}

func (w *sseWriter) WriteError(msg string) error {
	return w.writeEvent(stream.Event{Type: stream.EventTypeError, Content: msg})
}

func (w *sseWriter) WriteDone() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprint(w.writer, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("write done: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprint(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) writeEvent(event stream.Event) error {
	data, err := json.Marshal(struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}{string(event.Type), event.Content})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures the response headers for SSE streaming.
// Must be called before the first write.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ SSEWriter = (*sseWriter)(nil)
