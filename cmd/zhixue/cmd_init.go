// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/zhixueban/zhixue-cli/pkg/backend"
	"github.com/zhixueban/zhixue-cli/pkg/ux"
)

// runInitCommand walks through an interactive form and writes the
// configuration file. Existing values are kept as defaults, so init
// can be re-run to adjust a single field.
func runInitCommand(cmd *cobra.Command, args []string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("后端地址").
				Description("智学伴后端的 Base URL").
				Value(&cfg.BackendURL).
				Validate(func(s string) error {
					parsed, err := url.Parse(strings.TrimSpace(s))
					if err != nil || parsed.Scheme == "" || parsed.Host == "" {
						return fmt.Errorf("需要完整的 URL，例如 http://localhost:8000")
					}
					return nil
				}),

			huh.NewInput().
				Title("用户ID").
				Description("留空以游客模式使用（会话保存在本地）").
				Value(&cfg.UserID),

			huh.NewSelect[string]().
				Title("默认AI提供商").
				Options(providerOptions()...).
				Value(&cfg.Provider),

			huh.NewSelect[string]().
				Title("日志级别").
				Options(
					huh.NewOption("debug", "debug"),
					huh.NewOption("info", "info"),
					huh.NewOption("warn", "warn"),
					huh.NewOption("error", "error"),
				).
				Value(&cfg.LogLevel),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("配置未保存: %w", err)
	}

	if err := SaveConfig(configPath, cfg); err != nil {
		return err
	}

	console := ux.NewConsole(os.Stdout, resolvePersonality(cfg))
	console.Successf("配置已写入 %s", configPath)
	return nil
}

// providerOptions builds the provider choices, "auto" first.
func providerOptions() []huh.Option[string] {
	options := []huh.Option[string]{huh.NewOption("自动（由后端选择）", "")}
	for _, provider := range backend.FallbackProviders {
		options = append(options, huh.NewOption(provider, provider))
	}
	return options
}
