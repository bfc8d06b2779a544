// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
)

// mockHTTPClient records requests and returns scripted responses.
type mockHTTPClient struct {
	requests []*http.Request
	bodies   []string
	respond  func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.requests = append(m.requests, req)
	body := ""
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		body = string(b)
	}
	m.bodies = append(m.bodies, body)
	return m.respond(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func testClient(mock *mockHTTPClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClientWithClients("http://backend.test/", mock, mock, logger)
}

func TestAskStream_SendsPromptAndHeaders(t *testing.T) {
	mock := &mockHTTPClient{
		respond: func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("data: [DONE]\n\n")),
			}, nil
		},
	}
	client := testClient(mock)

	body, err := client.AskStream(context.Background(), AskRequest{
		Prompt:   "什么是函数？",
		Provider: "deepseek",
	})
	if err != nil {
		t.Fatalf("AskStream: %v", err)
	}
	defer body.Close()

	req := mock.requests[0]
	if req.Method != http.MethodPost {
		t.Errorf("method = %s", req.Method)
	}
	if req.URL.String() != "http://backend.test/api/v1/ai/ask/stream" {
		t.Errorf("url = %s", req.URL)
	}
	if got := req.Header.Get("Accept"); got != "text/event-stream" {
		t.Errorf("Accept = %q", got)
	}
	if req.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	var sent AskRequest
	if err := json.Unmarshal([]byte(mock.bodies[0]), &sent); err != nil {
		t.Fatalf("request body is not valid JSON: %v", err)
	}
	if sent.Prompt != "什么是函数？" || sent.Provider != "deepseek" {
		t.Errorf("sent body = %+v", sent)
	}
}

func TestAskStream_Non2xxBecomesStatusError(t *testing.T) {
	mock := &mockHTTPClient{
		respond: func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusServiceUnavailable, `{"error":"overloaded"}`), nil
		},
	}

	_, err := testClient(mock).AskStream(context.Background(), AskRequest{Prompt: "q"})
	if !IsStatus(err, http.StatusServiceUnavailable) {
		t.Errorf("expected 503 StatusError, got %v", err)
	}
}

func TestAskStream_TransportError(t *testing.T) {
	mock := &mockHTTPClient{
		respond: func(*http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		},
	}

	_, err := testClient(mock).AskStream(context.Background(), AskRequest{Prompt: "q"})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestListSessions(t *testing.T) {
	mock := &mockHTTPClient{
		respond: func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK,
				`{"sessions":[{"id":7,"title":"二次函数","messages":[{"role":"user","content":"q"}]}]}`), nil
		},
	}
	client := testClient(mock)

	sessions, err := client.ListSessions(context.Background(), 20)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}

	if got := mock.requests[0].URL.String(); got != "http://backend.test/api/v1/chat/sessions?limit=20" {
		t.Errorf("url = %s", got)
	}
	if len(sessions) != 1 || sessions[0].ID != 7 || sessions[0].Title != "二次函数" {
		t.Errorf("sessions = %+v", sessions)
	}
	if sessions[0].RemoteIDString() != "7" {
		t.Errorf("RemoteIDString = %q", sessions[0].RemoteIDString())
	}
}

func TestCreateSession(t *testing.T) {
	// The backend wraps the created session under a "session" key.
	mock := &mockHTTPClient{
		respond: func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusCreated,
				`{"session":{"id":12,"title":"新的对话","createdAt":"2025-08-28T10:00:00Z"}}`), nil
		},
	}

	created, err := testClient(mock).CreateSession(context.Background(), "新的对话")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if created.ID != 12 {
		t.Errorf("created id = %d, want 12", created.ID)
	}
	if created.RemoteIDString() != "12" {
		t.Errorf("RemoteIDString = %q, want 12", created.RemoteIDString())
	}
	if created.CreatedAt != "2025-08-28T10:00:00Z" {
		t.Errorf("createdAt = %q", created.CreatedAt)
	}
	if !strings.Contains(mock.bodies[0], `"title":"新的对话"`) {
		t.Errorf("request body = %s", mock.bodies[0])
	}
}

func TestUpdateSession_StatusErrors(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
		name   string
	}{
		{http.StatusNotFound, IsNotFound, "not found"},
		{http.StatusRequestEntityTooLarge, IsPayloadTooLarge, "payload too large"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := &mockHTTPClient{
				respond: func(*http.Request) (*http.Response, error) {
					return jsonResponse(tc.status, `{}`), nil
				},
			}

			title := "t"
			err := testClient(mock).UpdateSession(context.Background(), "5", UpdateSessionRequest{Title: &title})
			if !tc.check(err) {
				t.Errorf("expected %d classification, got %v", tc.status, err)
			}
		})
	}
}

func TestDeleteSession(t *testing.T) {
	mock := &mockHTTPClient{
		respond: func(*http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusNoContent, Body: io.NopCloser(strings.NewReader(""))}, nil
		},
	}

	if err := testClient(mock).DeleteSession(context.Background(), "9"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	req := mock.requests[0]
	if req.Method != http.MethodDelete || !strings.HasSuffix(req.URL.Path, "/api/v1/chat/sessions/9") {
		t.Errorf("request = %s %s", req.Method, req.URL)
	}
}

func TestProviders(t *testing.T) {
	mock := &mockHTTPClient{
		respond: func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"providers":["deepseek","wenxin"],"current":"deepseek"}`), nil
		},
	}

	providers, err := testClient(mock).Providers(context.Background())
	if err != nil {
		t.Fatalf("Providers: %v", err)
	}
	if len(providers.Providers) != 2 || providers.Current != "deepseek" {
		t.Errorf("providers = %+v", providers)
	}
}
