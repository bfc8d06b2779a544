// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/zhixueban/zhixue-cli/pkg/backend"
	"github.com/zhixueban/zhixue-cli/pkg/localstore"
	"github.com/zhixueban/zhixue-cli/pkg/logging"
	"github.com/zhixueban/zhixue-cli/pkg/persist"
	"github.com/zhixueban/zhixue-cli/pkg/session"
	"github.com/zhixueban/zhixue-cli/pkg/ux"
)

// =============================================================================
// Application Assembly
// =============================================================================

// app holds the wired dependencies shared by the chat and session
// commands.
type app struct {
	cfg         Config
	logger      *logging.Logger
	store       *session.Store
	local       *localstore.Store
	client      *backend.Client
	reconciler  *persist.Reconciler
	saver       *persist.Saver
	personality ux.Personality
}

// newApp builds the full dependency graph from the configuration.
// Callers must Close.
func newApp(cfg Config) (*app, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.LogDir,
		Service: "cli",
		// The terminal belongs to the chat; logs go to the file only.
		Quiet: true,
	})

	localCfg := localstore.DefaultConfig(logging.ExpandPath(cfg.DataDir))
	localCfg.Logger = logger.Slog()
	local, err := localstore.Open(localCfg)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("open local store: %w", err)
	}

	client := backend.NewClient(cfg.BackendURL)
	store := session.NewStore()

	identity := func() string { return cfg.UserID }
	reconciler := persist.New(store, client, local, identity, logger.Slog())
	saver := persist.NewSaver(reconciler, logger.Slog())

	return &app{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		local:       local,
		client:      client,
		reconciler:  reconciler,
		saver:       saver,
		personality: resolvePersonality(cfg),
	}, nil
}

// identity returns the identity provider used for persistence.
func (a *app) identity() persist.IdentityProvider {
	cfg := a.cfg
	return func() string { return cfg.UserID }
}

// Close releases the local store and the log file.
func (a *app) Close() {
	if err := a.local.Close(); err != nil {
		a.logger.Warn("closing local store", "error", err)
	}
	a.logger.Close()
}

// resolvePersonality applies the config override, if any.
func resolvePersonality(cfg Config) ux.Personality {
	switch cfg.Output {
	case "rich":
		return ux.PersonalityRich
	case "plain":
		return ux.PersonalityPlain
	case "machine":
		return ux.PersonalityMachine
	default:
		return ux.DetectPersonality()
	}
}
