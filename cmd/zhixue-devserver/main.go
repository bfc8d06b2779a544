// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command zhixue-devserver starts the Zhixueban development stub
// server: an in-memory stand-in for the production backend that the
// CLI can run against without any AI provider credentials.
//
// # Environment Variables
//
//   - ZHIXUE_DEV_PORT: HTTP server port (default: 8000)
//   - ZHIXUE_DEV_TOKEN_DELAY_MS: delay between content frames
//     (default: 20)
//   - ZHIXUE_DEV_MAX_MESSAGES: session update message cap, larger
//     updates get HTTP 413 (default: 200, 0 disables)
//
// # Usage
//
//	go build -o zhixue-devserver ./cmd/zhixue-devserver
//	./zhixue-devserver
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/zhixueban/zhixue-cli/pkg/logging"
	"github.com/zhixueban/zhixue-cli/services/devserver/handlers"
)

func main() {
	logger := logging.New(logging.Config{Service: "devserver", JSON: true})
	defer logger.Close()

	port := getEnvInt("ZHIXUE_DEV_PORT", 8000)
	tokenDelay := time.Duration(getEnvInt("ZHIXUE_DEV_TOKEN_DELAY_MS", 20)) * time.Millisecond
	maxMessages := getEnvInt("ZHIXUE_DEV_MAX_MESSAGES", 200)

	router := handlers.NewRouter(handlers.Options{
		Logger:            logger.Slog(),
		TokenDelay:        tokenDelay,
		MaxUpdateMessages: maxMessages,
	})

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting dev server",
		"port", port,
		"token_delay", tokenDelay,
		"max_update_messages", maxMessages,
	)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("dev server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
