// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"testing"
)

func TestParseFrame_ContentEvent(t *testing.T) {
	parser := NewFrameParser()

	event, err := parser.ParseFrame(`data: {"type":"content","content":"你好"}`)
	if err != nil {
		t.Fatalf("ParseFrame returned error: %v", err)
	}
	if event == nil {
		t.Fatal("expected event, got nil")
	}
	if event.Type != EventTypeContent {
		t.Errorf("expected content event, got %q", event.Type)
	}
	if event.Content != "你好" {
		t.Errorf("expected content %q, got %q", "你好", event.Content)
	}
}

func TestParseFrame_ErrorEvent(t *testing.T) {
	parser := NewFrameParser()

	event, err := parser.ParseFrame(`data: {"type":"error","content":"AI服务暂时不可用"}`)
	if err != nil {
		t.Fatalf("ParseFrame returned error: %v", err)
	}
	if event == nil {
		t.Fatal("expected event, got nil")
	}
	if event.Type != EventTypeError {
		t.Errorf("expected error event, got %q", event.Type)
	}
	if event.Content != "AI服务暂时不可用" {
		t.Errorf("unexpected error content: %q", event.Content)
	}
	if !event.IsTerminal() {
		t.Error("error events should be terminal")
	}
}

func TestParseFrame_DoneSentinel(t *testing.T) {
	parser := NewFrameParser()

	event, err := parser.ParseFrame("data: [DONE]")
	if err != nil {
		t.Fatalf("ParseFrame returned error: %v", err)
	}
	if event == nil {
		t.Fatal("expected done event, got nil")
	}
	if event.Type != EventTypeDone {
		t.Errorf("expected done event, got %q", event.Type)
	}
	if !event.IsTerminal() {
		t.Error("done events should be terminal")
	}
}

func TestParseFrame_EmptyAndComment(t *testing.T) {
	parser := NewFrameParser()

	for _, frame := range []string{"", "   ", ": keep-alive"} {
		event, err := parser.ParseFrame(frame)
		if err != nil {
			t.Errorf("frame %q returned error: %v", frame, err)
		}
		if event != nil {
			t.Errorf("frame %q should yield no event, got %+v", frame, event)
		}
	}
}

func TestParseFrame_NoDataPrefix(t *testing.T) {
	parser := NewFrameParser()

	event, err := parser.ParseFrame("event: ping")
	if err != nil {
		t.Fatalf("ParseFrame returned error: %v", err)
	}
	if event != nil {
		t.Errorf("frames without a data line should be ignored, got %+v", event)
	}
}

func TestParseFrame_DataPrefixWithoutSpace(t *testing.T) {
	parser := NewFrameParser()

	event, err := parser.ParseFrame(`data:{"type":"content","content":"x"}`)
	if err != nil {
		t.Fatalf("ParseFrame returned error: %v", err)
	}
	if event == nil || event.Content != "x" {
		t.Errorf("expected content event with %q, got %+v", "x", event)
	}
}

func TestParseFrame_MultiLineFrame(t *testing.T) {
	parser := NewFrameParser()

	frame := "event: message\ndata: {\"type\":\"content\",\"content\":\"hi\"}"
	event, err := parser.ParseFrame(frame)
	if err != nil {
		t.Fatalf("ParseFrame returned error: %v", err)
	}
	if event == nil || event.Content != "hi" {
		t.Errorf("expected content event with %q, got %+v", "hi", event)
	}
}

func TestParseFrame_UnknownTypeIgnored(t *testing.T) {
	parser := NewFrameParser()

	event, err := parser.ParseFrame(`data: {"type":"heartbeat"}`)
	if err != nil {
		t.Fatalf("ParseFrame returned error: %v", err)
	}
	if event != nil {
		t.Errorf("unknown payload types should be ignored, got %+v", event)
	}
}

func TestParseFrame_InvalidJSON(t *testing.T) {
	parser := NewFrameParser()

	event, err := parser.ParseFrame(`data: {"type":"content","cont`)
	if err == nil {
		t.Fatal("expected JSON error for truncated payload")
	}
	if event != nil {
		t.Errorf("expected nil event on parse failure, got %+v", event)
	}
}

func TestParsePayload_EmptyPayload(t *testing.T) {
	parser := NewFrameParser()

	event, err := parser.ParsePayload("  ")
	if err != nil {
		t.Fatalf("ParsePayload returned error: %v", err)
	}
	if event != nil {
		t.Errorf("empty payload should yield no event, got %+v", event)
	}
}
