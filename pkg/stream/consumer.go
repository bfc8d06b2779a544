// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream consumes Server-Sent Events responses from the Zhixueban
// AI backend and turns them into typed events.
//
// This file contains the consumer, which owns I/O and chunk reassembly.
//
// Chunk Reassembly:
//
//	HTTP chunked transfer gives no alignment guarantees: a read may end
//	in the middle of a UTF-8 sequence, a JSON payload, or the "\n\n"
//	delimiter itself. The consumer therefore accumulates raw bytes and
//	only converts to string at frame boundaries, so any chunking of the
//	same byte stream yields the same event sequence.
//
// Context Support:
//
//	Consume accepts context.Context for cancellation. When the context
//	is cancelled, reading stops and the context error is returned.
package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
)

// =============================================================================
// Consumer Interface
// =============================================================================

// Consumer reads a streaming response and invokes a callback per event.
//
// Example:
//
//	consumer := NewConsumer(NewFrameParser())
//
//	err := consumer.Consume(ctx, resp.Body, func(event stream.Event) error {
//	    switch event.Type {
//	    case stream.EventTypeContent:
//	        fmt.Print(event.Content)
//	    case stream.EventTypeError:
//	        return errors.New(event.Content)
//	    }
//	    return nil
//	})
type Consumer interface {
	// Consume processes a stream, invoking callback for each event.
	//
	// Parameters:
	//   - ctx: Context for cancellation. When cancelled, stops reading.
	//   - r: The source to read from. Caller is responsible for closing.
	//   - callback: Invoked for each parsed event. Return error to stop.
	//
	// Returns:
	//   - error: nil on successful completion, otherwise the error that
	//     stopped reading (context cancellation, transport read failure,
	//     or callback error).
	//
	// The stream is considered complete when:
	//   - A terminal event (done/error) is delivered
	//   - EOF is reached (any residual buffer is flushed as a final frame)
	//   - Context is cancelled
	//   - Callback returns an error
	//
	// Malformed frames are logged and skipped; a garbled frame must not
	// abort an otherwise healthy stream. In-band error events are
	// delivered to the callback and end consumption with a nil return;
	// transport failures are returned as errors. Callers distinguish the
	// two by where the failure surfaces.
	Consume(ctx context.Context, r io.Reader, callback Callback) error
}

// =============================================================================
// SSE Consumer
// =============================================================================

// frameDelimiter separates SSE frames on the wire.
var frameDelimiter = []byte("\n\n")

// readBufferSize is the per-read chunk size. Small enough to deliver
// tokens promptly, large enough to avoid syscall churn.
const readBufferSize = 4096

// sseConsumer implements Consumer for Server-Sent Events.
type sseConsumer struct {
	parser FrameParser
	logger *slog.Logger
}

// NewConsumer creates a new SSE consumer.
//
// Parameters:
//   - parser: The frame parser to use for complete frames.
//
// Returns a Consumer that handles the backend's SSE format.
func NewConsumer(parser FrameParser) Consumer {
	return &sseConsumer{
		parser: parser,
		logger: slog.Default(),
	}
}

// NewConsumerWithLogger creates a consumer with an explicit logger.
//
// Tests use this to capture or silence malformed-frame warnings.
func NewConsumerWithLogger(parser FrameParser, logger *slog.Logger) Consumer {
	return &sseConsumer{
		parser: parser,
		logger: logger,
	}
}

// Consume processes an SSE stream, invoking callback for each event.
//
// Bytes are accumulated in a buffer and split on the blank-line
// delimiter. The trailing fragment after the last delimiter stays in
// the buffer until more bytes arrive or EOF flushes it.
func (c *sseConsumer) Consume(ctx context.Context, r io.Reader, callback Callback) error {
	var buffer bytes.Buffer
	chunk := make([]byte, readBufferSize)
	eventIndex := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := r.Read(chunk)
		if n > 0 {
			buffer.Write(chunk[:n])

			done, err := c.drainFrames(&buffer, &eventIndex, callback)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				// The backend ended the stream without a [DONE]
				// frame. Whatever is buffered is one last frame.
				return c.flushResidual(&buffer, &eventIndex, callback)
			}
			return readErr
		}
	}
}

// drainFrames parses every complete frame currently in the buffer.
//
// Returns done=true once a terminal event has been delivered.
func (c *sseConsumer) drainFrames(buffer *bytes.Buffer, eventIndex *int, callback Callback) (bool, error) {
	for {
		data := buffer.Bytes()
		idx := bytes.Index(data, frameDelimiter)
		if idx < 0 {
			return false, nil
		}

		frame := string(data[:idx])
		buffer.Next(idx + len(frameDelimiter))

		done, err := c.dispatchFrame(frame, eventIndex, callback)
		if err != nil || done {
			return done, err
		}
	}
}

// flushResidual handles the buffer remainder at EOF.
func (c *sseConsumer) flushResidual(buffer *bytes.Buffer, eventIndex *int, callback Callback) error {
	if buffer.Len() == 0 {
		return nil
	}

	_, err := c.dispatchFrame(buffer.String(), eventIndex, callback)
	buffer.Reset()
	return err
}

// dispatchFrame parses one frame and delivers its event, if any.
//
// Parse failures are logged and swallowed: one garbled frame (for
// example a payload truncated by the server) must not lose the tokens
// already rendered.
func (c *sseConsumer) dispatchFrame(frame string, eventIndex *int, callback Callback) (bool, error) {
	event, err := c.parser.ParseFrame(frame)
	if err != nil {
		c.logger.Warn("skipping malformed stream frame",
			"error", err,
			"frame_bytes", len(frame),
		)
		return false, nil
	}

	if event == nil {
		return false, nil
	}

	event.Index = *eventIndex
	*eventIndex++

	if err := callback(*event); err != nil {
		return false, err
	}

	return event.IsTerminal(), nil
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ Consumer = (*sseConsumer)(nil)
