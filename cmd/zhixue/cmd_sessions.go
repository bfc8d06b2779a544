// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhixueban/zhixue-cli/pkg/ux"
)

// sessionCommandTimeout bounds the non-interactive session commands.
const sessionCommandTimeout = 30 * time.Second

// runListSessions prints the persisted session list.
func runListSessions(cmd *cobra.Command, args []string) error {
	application, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := context.WithTimeout(context.Background(), sessionCommandTimeout)
	defer cancel()

	application.reconciler.Load(ctx)

	renderer := ux.NewChatRenderer(os.Stdout, application.personality)
	renderer.SessionList(application.store.Snapshot(), application.store.ActiveID())
	return nil
}

// runDeleteSession deletes the numbered session from the list and
// persists the change. For logged-in users the backend copy is
// removed as well.
func runDeleteSession(cmd *cobra.Command, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("会话编号必须是数字: %q", args[0])
	}

	application, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := context.WithTimeout(context.Background(), sessionCommandTimeout)
	defer cancel()

	application.reconciler.Load(ctx)

	sessions := application.store.Snapshot()
	if n < 1 || n > len(sessions) {
		return fmt.Errorf("没有编号为 %d 的会话", n)
	}
	target := sessions[n-1]

	if target.IsRemote() && cfg.UserID != "" {
		if err := application.client.DeleteSession(ctx, target.RemoteID); err != nil {
			application.logger.Warn("failed to delete remote session",
				"remote_id", target.RemoteID, "error", err)
		}
	}

	newActive := application.store.Delete(target.ID)
	application.reconciler.SaveSession(ctx, newActive.ID, true)

	console := ux.NewConsole(os.Stdout, application.personality)
	console.Successf("已删除「%s」", target.Title)
	return nil
}
