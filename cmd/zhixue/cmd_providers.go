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
	"time"

	"github.com/spf13/cobra"

	"github.com/zhixueban/zhixue-cli/pkg/backend"
	"github.com/zhixueban/zhixue-cli/pkg/ux"
)

// runProviders lists the AI providers the backend is configured with.
// When the backend is unreachable the platform's known provider list
// is shown instead, marked as such.
func runProviders(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	personality := resolvePersonality(cfg)
	console := ux.NewConsole(os.Stdout, personality)

	client := backend.NewClient(cfg.BackendURL)
	resp, err := client.Providers(ctx)
	if err != nil {
		console.Warnf("后端不可达，显示内置列表")
		resp = &backend.ProvidersResponse{Providers: backend.FallbackProviders}
	}

	current := cfg.Provider
	if current == "" {
		current = resp.Current
	}
	for _, provider := range resp.Providers {
		marker := "  "
		if provider == current {
			marker = "* "
		}
		fmt.Println(marker + provider)
	}
	return nil
}
