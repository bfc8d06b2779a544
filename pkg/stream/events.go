// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream consumes Server-Sent Events responses from the Zhixueban
// AI backend and turns them into typed events.
//
// This file defines the event model shared by the frame parser and the
// stream consumer.
//
// Wire Format:
//
//	data: {"type":"content","content":"你好"}\n
//	\n
//	data: {"type":"content","content":"，同学"}\n
//	\n
//	data: [DONE]\n
//	\n
//
// Each frame carries either a JSON payload or the literal [DONE] sentinel.
// Frames are delimited by a blank line; the payload JSON has a "type" field
// of "content" (a text delta) or "error" (an in-band failure whose message
// is in "content").
package stream

// =============================================================================
// Event Types
// =============================================================================

// EventType identifies the kind of a parsed stream event.
type EventType string

const (
	// EventTypeContent is an incremental text delta for the open
	// assistant message.
	EventTypeContent EventType = "content"

	// EventTypeError is an in-band failure reported by the backend
	// inside the stream body. The event's Content holds the message.
	EventTypeError EventType = "error"

	// EventTypeDone marks the end of the stream. Emitted for the
	// [DONE] sentinel frame.
	EventTypeDone EventType = "done"
)

// =============================================================================
// Event
// =============================================================================

// Event is a single parsed stream event.
//
// Content events carry a text delta. Error events carry the backend's
// error message. Done events carry no content.
type Event struct {
	// Type is the event kind.
	Type EventType

	// Content is the text delta (content events) or the error
	// message (error events).
	Content string

	// Index is the zero-based position of this event within the
	// stream, assigned by the consumer.
	Index int
}

// IsTerminal reports whether this event ends the stream.
//
// Done and error events are terminal: the backend sends nothing
// meaningful after either, so the consumer stops reading once the
// callback has seen the event.
func (e *Event) IsTerminal() bool {
	return e.Type == EventTypeDone || e.Type == EventTypeError
}

// Callback is invoked by a Consumer for each parsed event, in stream
// order. Returning a non-nil error stops consumption and propagates
// the error to the caller.
type Callback func(event Event) error
