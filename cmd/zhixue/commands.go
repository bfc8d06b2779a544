// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	cfg        Config
	configPath string

	flagProvider string // CLI override for config provider
	flagUser     string // CLI override for config user_id
	flagBackend  string // CLI override for config backend_url
	flagOutput   string // CLI override for output style (rich/plain/machine)

	rootCmd = &cobra.Command{
		Use:   "zhixue",
		Short: "智学伴命令行：AI学习问答与会话管理",
		Long: `zhixue 是智学伴学习平台的命令行客户端。

它把平台的AI问答带进终端：流式回答、多会话管理、数学公式
渲染。登录用户的会话保存在后端，游客模式保存在本地。`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			cfg = loaded

			// CLI flags override the config file.
			if flagProvider != "" {
				cfg.Provider = flagProvider
			}
			if flagUser != "" {
				cfg.UserID = flagUser
			}
			if flagBackend != "" {
				cfg.BackendURL = flagBackend
			}
			if flagOutput != "" {
				cfg.Output = flagOutput
			}
			return nil
		},
	}

	// --- Chat ---
	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "开始交互式问答",
		RunE:  runChatCommand, // Defined in cmd_chat.go
	}

	// --- Sessions ---
	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "管理历史会话",
	}
	listSessionsCmd = &cobra.Command{
		Use:   "list",
		Short: "列出会话",
		RunE:  runListSessions, // Defined in cmd_sessions.go
	}
	deleteSessionCmd = &cobra.Command{
		Use:   "delete [编号]",
		Short: "删除指定编号的会话",
		Args:  cobra.ExactArgs(1),
		RunE:  runDeleteSession, // Defined in cmd_sessions.go
	}

	// --- Providers ---
	providersCmd = &cobra.Command{
		Use:   "providers",
		Short: "列出可用的AI提供商",
		RunE:  runProviders, // Defined in cmd_providers.go
	}

	// --- Init ---
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "交互式生成配置文件",
		RunE:  runInitCommand, // Defined in cmd_init.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", DefaultConfigPath(),
		"配置文件路径")
	rootCmd.PersistentFlags().StringVar(&flagOutput, "output", "",
		"输出风格：rich、plain 或 machine")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "",
		"后端地址（覆盖配置文件）")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "",
		"用户ID（覆盖配置文件，留空为游客模式）")

	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&flagProvider, "provider", "p", "",
		"AI提供商（deepseek、wenxin、xinghuo、chatglm、moonshot）")

	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(listSessionsCmd)
	sessionsCmd.AddCommand(deleteSessionCmd)

	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(initCmd)
}
