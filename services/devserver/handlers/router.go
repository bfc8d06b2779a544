// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zhixueban/zhixue-cli/pkg/backend"
)

// =============================================================================
// Router
// =============================================================================

// Options configures the stub server.
type Options struct {
	// Logger receives request logs. Nil discards them.
	Logger *slog.Logger

	// Providers is the provider list the server reports and accepts.
	// Empty defaults to backend.FallbackProviders.
	Providers []string

	// DefaultProvider is reported as the current provider. Empty
	// defaults to the first entry of Providers.
	DefaultProvider string

	// TokenDelay paces content frames on the stream endpoint. Zero
	// streams as fast as the connection allows; tests want zero,
	// interactive use wants ~20ms so the typing effect is visible.
	TokenDelay time.Duration

	// MaxUpdateMessages caps the message list accepted by the update
	// endpoint; larger updates get HTTP 413. Zero disables the cap.
	MaxUpdateMessages int
}

// NewRouter assembles the gin engine with all stub endpoints mounted.
func NewRouter(opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	providers := opts.Providers
	if len(providers) == 0 {
		providers = backend.FallbackProviders
	}
	current := opts.DefaultProvider
	if current == "" {
		current = providers[0]
	}

	store := newSessionStore()

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.POST("/ai/ask/stream", AskStream(providers, opts.TokenDelay, logger))
		api.GET("/ai/providers", Providers(providers, current))

		api.GET("/chat/sessions", ListSessions(store, logger))
		api.POST("/chat/sessions", CreateSession(store, logger))
		api.PUT("/chat/sessions/:id", UpdateSession(store, opts.MaxUpdateMessages, logger))
		api.DELETE("/chat/sessions/:id", DeleteSession(store, logger))
	}

	return router
}
