// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zhixueban/zhixue-cli/pkg/backend"
)

// =============================================================================
// Session Endpoints
// =============================================================================

// ListSessions handles GET /api/v1/chat/sessions.
func ListSessions(store *sessionStore, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			limit = parsed
		}

		sessions := store.List(limit)
		logger.Info("listed sessions", "count", len(sessions), "limit", limit)
		c.JSON(http.StatusOK, backend.ListSessionsResponse{Sessions: sessions})
	}
}

// CreateSession handles POST /api/v1/chat/sessions.
func CreateSession(store *sessionStore, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req backend.CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		sess := store.Create(req.Title)
		logger.Info("created session", "session_id", sess.ID, "title", sess.Title)
		c.JSON(http.StatusOK, backend.CreateSessionResponse{Session: sess})
	}
}

// UpdateSession handles PUT /api/v1/chat/sessions/:id.
//
// Responds 404 for unknown sessions and 413 when the message list
// exceeds maxMessages, matching the production backend's limits so
// the CLI's recovery paths can be exercised locally.
func UpdateSession(store *sessionStore, maxMessages int, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}

		var req backend.UpdateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		if maxMessages > 0 && len(req.Messages) > maxMessages {
			logger.Warn("rejected oversized session update",
				"session_id", id, "messages", len(req.Messages), "max", maxMessages)
			c.JSON(http.StatusRequestEntityTooLarge,
				gin.H{"error": "message list too large", "max_messages": maxMessages})
			return
		}

		if err := store.Update(id, req); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		logger.Info("updated session", "session_id", id, "messages", len(req.Messages))
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}

// DeleteSession handles DELETE /api/v1/chat/sessions/:id.
func DeleteSession(store *sessionStore, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}

		if err := store.Delete(id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		logger.Info("deleted session", "session_id", id)
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": id})
	}
}
