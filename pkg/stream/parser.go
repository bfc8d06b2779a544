// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream consumes Server-Sent Events responses from the Zhixueban
// AI backend and turns them into typed events.
//
// This file contains the frame parser. Parsers are responsible for
// converting a single complete SSE frame into an Event.
//
// Single Responsibility:
//
//	Parsers ONLY parse. They do not perform I/O, buffering, or state
//	management. Chunk reassembly lives in the Consumer; this separation
//	keeps the parser trivially testable against string fixtures.
package stream

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// Frame Parser Interface
// =============================================================================

// FrameParser parses one complete SSE frame into an Event.
//
// A frame is the text between two blank-line delimiters, with the
// delimiters already stripped by the consumer.
//
// Thread Safety:
//
//	FrameParser implementations must be safe for concurrent use.
//	The default implementation is stateless and inherently thread-safe.
//
// Example:
//
//	parser := NewFrameParser()
//	event, err := parser.ParseFrame(`data: {"type":"content","content":"解"}`)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if event != nil {
//	    fmt.Println(event.Content) // "解"
//	}
type FrameParser interface {
	// ParseFrame parses a single SSE frame.
	//
	// Parameters:
	//   - frame: One frame's text, without the trailing blank-line
	//     delimiter. Leading/trailing whitespace is tolerated.
	//
	// Returns:
	//   - *Event: The parsed event, or nil for frames that carry no
	//     event (empty frames, comments, non-data lines, payloads of
	//     unknown type).
	//   - error: Non-nil if the payload claimed to be JSON but failed
	//     to parse.
	//
	// Frame handling:
	//   - Empty/whitespace frames: nil, nil
	//   - Comment frames (":"): nil, nil
	//   - "data: [DONE]": done event
	//   - "data: {json}": content or error event by payload type
	//   - Frames without a data prefix: nil, nil (ignored)
	ParseFrame(frame string) (*Event, error)

	// ParsePayload parses a raw payload (the text after "data: ")
	// into an Event. Use this when the prefix has already been
	// stripped.
	ParsePayload(payload string) (*Event, error)
}

// =============================================================================
// Frame Parser Implementation
// =============================================================================

// doneSentinel is the literal payload the backend sends to mark the
// end of a stream.
const doneSentinel = "[DONE]"

// frameParser implements FrameParser for the Zhixueban SSE format.
//
// This implementation is stateless and safe for concurrent use.
type frameParser struct{}

// NewFrameParser creates a new frame parser.
//
// The returned parser is stateless and can be safely shared across
// goroutines.
func NewFrameParser() FrameParser {
	return &frameParser{}
}

// ParseFrame parses a single SSE frame.
//
// Multi-line frames keep only the data line; other SSE fields (event,
// id, retry) are not used by the backend and are skipped.
func (p *frameParser) ParseFrame(frame string) (*Event, error) {
	frame = strings.TrimSpace(frame)

	if frame == "" {
		return nil, nil
	}

	// Comments start with ":".
	if strings.HasPrefix(frame, ":") {
		return nil, nil
	}

	// A frame may span several lines; only the data line matters.
	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "data: ") {
			return p.ParsePayload(strings.TrimPrefix(line, "data: "))
		}

		// Also handle "data:" without a space (some servers do this).
		if strings.HasPrefix(line, "data:") {
			return p.ParsePayload(strings.TrimPrefix(line, "data:"))
		}
	}

	// No data line. Ignore rather than guess.
	return nil, nil
}

// ParsePayload parses a payload into an Event.
//
// The [DONE] sentinel becomes a done event. JSON payloads are
// dispatched on their "type" field; unknown types yield nil so new
// server-side event kinds do not break older clients.
func (p *frameParser) ParsePayload(payload string) (*Event, error) {
	payload = strings.TrimSpace(payload)

	if payload == "" {
		return nil, nil
	}

	if payload == doneSentinel {
		return &Event{Type: EventTypeDone}, nil
	}

	var raw struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}

	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, err
	}

	switch raw.Type {
	case "content":
		return &Event{Type: EventTypeContent, Content: raw.Content}, nil
	case "error":
		return &Event{Type: EventTypeError, Content: raw.Content}, nil
	default:
		return nil, nil
	}
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ FrameParser = (*frameParser)(nil)
