// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhixueban/zhixue-cli/pkg/ux"
)

// maxInputHistory bounds the up-arrow input history.
const maxInputHistory = 50

// runChatCommand starts the interactive chat session.
//
// Loads persisted conversations first (backend for logged-in users,
// local store for guests), then runs the chat loop until exit or
// SIGINT. Every exit path flushes the active session.
func runChatCommand(cmd *cobra.Command, args []string) error {
	application, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application.reconciler.Load(ctx)

	application.saver.Start()
	defer application.saver.Stop()

	renderer := ux.NewChatRenderer(os.Stdout, application.personality)
	console := ux.NewConsole(os.Stdout, application.personality)

	service := NewChatService(
		application.store,
		application.client,
		application.saver,
		renderer,
		cfg.Provider,
		application.logger.Slog(),
	)

	runner := NewChatRunner(
		application.store,
		service,
		application.saver,
		renderer,
		console,
		application.client,
		application.identity(),
		NewInteractiveInputReader(maxInputHistory),
		application.logger.Slog(),
	)

	if err := runner.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			console.Infof("再见！")
			return nil
		}
		return err
	}
	console.Infof("再见！")
	return nil
}
