// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

// chunkedReader returns at most size bytes per Read call, forcing the
// consumer to reassemble frames across arbitrary boundaries.
type chunkedReader struct {
	data []byte
	pos  int
	size int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := r.size
	if n > len(p) {
		n = len(p)
	}
	if r.pos+n > len(r.data) {
		n = len(r.data) - r.pos
	}
	copy(p, r.data[r.pos:r.pos+n])
	r.pos += n
	return n, nil
}

func quietConsumer() Consumer {
	return NewConsumerWithLogger(
		NewFrameParser(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func collectEvents(t *testing.T, c Consumer, r io.Reader) []Event {
	t.Helper()

	var events []Event
	err := c.Consume(context.Background(), r, func(event Event) error {
		events = append(events, event)
		return nil
	})
	if err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	return events
}

const basicStream = "data: {\"type\":\"content\",\"content\":\"勾股\"}\n\n" +
	"data: {\"type\":\"content\",\"content\":\"定理\"}\n\n" +
	"data: [DONE]\n\n"

func TestConsume_BasicStream(t *testing.T) {
	events := collectEvents(t, quietConsumer(), strings.NewReader(basicStream))

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Content != "勾股" || events[1].Content != "定理" {
		t.Errorf("unexpected content deltas: %q, %q", events[0].Content, events[1].Content)
	}
	if events[2].Type != EventTypeDone {
		t.Errorf("expected done event last, got %q", events[2].Type)
	}
	for i, event := range events {
		if event.Index != i {
			t.Errorf("event %d has index %d", i, event.Index)
		}
	}
}

func TestConsume_ChunkBoundaryIndependence(t *testing.T) {
	// The same byte stream must yield the same events no matter how
	// the transport slices it, including mid-UTF-8 and mid-delimiter.
	want := collectEvents(t, quietConsumer(), strings.NewReader(basicStream))

	for _, size := range []int{1, 2, 3, 5, 7, 64} {
		reader := &chunkedReader{data: []byte(basicStream), size: size}
		got := collectEvents(t, quietConsumer(), reader)

		if len(got) != len(want) {
			t.Fatalf("chunk size %d: expected %d events, got %d", size, len(want), len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("chunk size %d: event %d = %+v, want %+v", size, i, got[i], want[i])
			}
		}
	}
}

func TestConsume_ResidualFlushedAtEOF(t *testing.T) {
	// Stream ends without [DONE] and without a trailing delimiter;
	// the buffered remainder is still one valid frame.
	input := "data: {\"type\":\"content\",\"content\":\"a\"}\n\n" +
		"data: {\"type\":\"content\",\"content\":\"b\"}"

	events := collectEvents(t, quietConsumer(), strings.NewReader(input))

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Content != "b" {
		t.Errorf("residual frame content = %q, want %q", events[1].Content, "b")
	}
}

func TestConsume_MalformedFrameSkipped(t *testing.T) {
	input := "data: {\"type\":\"content\",\"content\":\"ok\"}\n\n" +
		"data: {not json}\n\n" +
		"data: {\"type\":\"content\",\"content\":\"still ok\"}\n\n" +
		"data: [DONE]\n\n"

	events := collectEvents(t, quietConsumer(), strings.NewReader(input))

	if len(events) != 3 {
		t.Fatalf("expected 3 events (garbled frame skipped), got %d", len(events))
	}
	if events[1].Content != "still ok" {
		t.Errorf("expected stream to continue past the garbled frame, got %q", events[1].Content)
	}
}

func TestConsume_ErrorEventIsTerminal(t *testing.T) {
	input := "data: {\"type\":\"error\",\"content\":\"模型超载\"}\n\n" +
		"data: {\"type\":\"content\",\"content\":\"should not arrive\"}\n\n"

	events := collectEvents(t, quietConsumer(), strings.NewReader(input))

	if len(events) != 1 {
		t.Fatalf("expected consumption to stop at the error event, got %d events", len(events))
	}
	if events[0].Type != EventTypeError || events[0].Content != "模型超载" {
		t.Errorf("unexpected terminal event: %+v", events[0])
	}
}

func TestConsume_CallbackErrorStops(t *testing.T) {
	wantErr := errors.New("renderer failed")

	err := quietConsumer().Consume(context.Background(), strings.NewReader(basicStream), func(Event) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected callback error to propagate, got %v", err)
	}
}

func TestConsume_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := quietConsumer().Consume(ctx, strings.NewReader(basicStream), func(Event) error {
		t.Error("callback should not run after cancellation")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// errReader fails after yielding its prefix, simulating a dropped
// connection mid-stream.
type errReader struct {
	prefix string
	read   bool
}

func (r *errReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true
		return copy(p, r.prefix), nil
	}
	return 0, errors.New("connection reset")
}

func TestConsume_TransportErrorReturned(t *testing.T) {
	reader := &errReader{prefix: "data: {\"type\":\"content\",\"content\":\"partial\"}\n\n"}

	var events []Event
	err := quietConsumer().Consume(context.Background(), reader, func(event Event) error {
		events = append(events, event)
		return nil
	})

	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("expected transport error, got %v", err)
	}
	if len(events) != 1 || events[0].Content != "partial" {
		t.Errorf("events before the failure should still be delivered, got %+v", events)
	}
}
