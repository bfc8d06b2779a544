// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package backend is the HTTP client for the Zhixueban backend API.
//
// This file contains the client itself.
//
// Two HTTP clients:
//
//	REST calls (session CRUD, provider list) use a 10-second timeout.
//	The streaming ask call must NOT have a client timeout: a long
//	answer legitimately streams for minutes, and http.Client.Timeout
//	covers the whole response body. Cancellation of a stream is the
//	caller's job via context.
//
// Testability:
//
//	The client depends on the HTTPClient interface rather than
//	*http.Client directly. Tests inject mocks; production code uses
//	the defaults from NewClient.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Interfaces
// =============================================================================

// HTTPClient abstracts *http.Client for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ChatAPI is the conversational surface of the backend.
type ChatAPI interface {
	// AskStream opens a streaming answer to the given prompt.
	//
	// The returned body is a live text/event-stream; the caller must
	// close it. Non-2xx responses are returned as *StatusError.
	AskStream(ctx context.Context, req AskRequest) (io.ReadCloser, error)

	// Providers returns the backend's configured AI providers.
	Providers(ctx context.Context) (*ProvidersResponse, error)
}

// SessionAPI is the session persistence surface of the backend.
type SessionAPI interface {
	// ListSessions returns up to limit recent sessions, newest first.
	ListSessions(ctx context.Context, limit int) ([]RemoteSession, error)

	// CreateSession creates an empty session with the given title.
	CreateSession(ctx context.Context, title string) (*RemoteSession, error)

	// UpdateSession replaces the title and/or messages of a session.
	UpdateSession(ctx context.Context, remoteID string, req UpdateSessionRequest) error

	// DeleteSession removes a session.
	DeleteSession(ctx context.Context, remoteID string) error
}

// =============================================================================
// Client
// =============================================================================

const (
	// apiTimeout bounds non-streaming REST calls.
	apiTimeout = 10 * time.Second

	// maxErrorBodyBytes caps how much of an error response is kept
	// for logging.
	maxErrorBodyBytes = 2048

	askStreamPath = "/api/v1/ai/ask/stream"
	sessionsPath  = "/api/v1/chat/sessions"
	providersPath = "/api/v1/ai/providers"
)

// Client talks to the Zhixueban backend.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	baseURL      string
	apiClient    HTTPClient
	streamClient HTTPClient
	logger       *slog.Logger
}

// NewClient creates a client with production HTTP defaults.
//
// Parameters:
//   - baseURL: Backend base URL, e.g. "http://localhost:5000".
//     A trailing slash is tolerated.
func NewClient(baseURL string) *Client {
	return NewClientWithClients(
		baseURL,
		&http.Client{Timeout: apiTimeout},
		&http.Client{}, // no timeout: body streams indefinitely
		slog.Default(),
	)
}

// NewClientWithClients creates a client with injected HTTP clients.
// Tests use this to mock transport behavior.
func NewClientWithClients(baseURL string, apiClient, streamClient HTTPClient, logger *slog.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiClient:    apiClient,
		streamClient: streamClient,
		logger:       logger,
	}
}

// =============================================================================
// Chat API
// =============================================================================

// AskStream opens a streaming answer for the given prompt.
//
// The request carries a generated X-Request-ID so client and server
// logs can be correlated.
func (c *Client) AskStream(ctx context.Context, askReq AskRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(askReq)
	if err != nil {
		return nil, fmt.Errorf("marshal ask request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+askStreamPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ask request: %w", err)
	}

	requestID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("X-Request-ID", requestID)

	c.logger.Debug("opening answer stream",
		"request_id", requestID,
		"provider", askReq.Provider,
		"history_len", len(askReq.History),
	)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ask stream request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.statusError(resp)
	}

	return resp.Body, nil
}

// Providers returns the backend's configured AI providers.
//
// Callers that cannot reach the backend should fall back to
// FallbackProviders rather than show an empty picker.
func (c *Client) Providers(ctx context.Context) (*ProvidersResponse, error) {
	var out ProvidersResponse
	if err := c.doJSON(ctx, http.MethodGet, providersPath, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// Session API
// =============================================================================

// ListSessions returns up to limit recent sessions, newest first.
func (c *Client) ListSessions(ctx context.Context, limit int) ([]RemoteSession, error) {
	path := sessionsPath
	if limit > 0 {
		path += "?limit=" + url.QueryEscape(fmt.Sprintf("%d", limit))
	}

	var out ListSessionsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// CreateSession creates an empty session with the given title.
func (c *Client) CreateSession(ctx context.Context, title string) (*RemoteSession, error) {
	var out CreateSessionResponse
	err := c.doJSON(ctx, http.MethodPost, sessionsPath, CreateSessionRequest{Title: title}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Session, nil
}

// UpdateSession replaces the title and/or messages of a session.
//
// Returns a *StatusError with code 404 when the session no longer
// exists remotely and 413 when the payload exceeds the backend's
// request size limit.
func (c *Client) UpdateSession(ctx context.Context, remoteID string, updateReq UpdateSessionRequest) error {
	return c.doJSON(ctx, http.MethodPut, sessionsPath+"/"+url.PathEscape(remoteID), updateReq, nil)
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, remoteID string) error {
	return c.doJSON(ctx, http.MethodDelete, sessionsPath+"/"+url.PathEscape(remoteID), nil, nil)
}

// =============================================================================
// Internals
// =============================================================================

// doJSON performs one REST round trip with JSON encoding both ways.
// A nil out discards the response body.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var bodyReader io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.apiClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// statusError drains a bounded amount of the response body into a
// typed error.
func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

// =============================================================================
// Compile-time Interface Checks
// =============================================================================

var (
	_ ChatAPI    = (*Client)(nil)
	_ SessionAPI = (*Client)(nil)
)
