// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for projchat.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServerConfig: Where the collaborator server lives
//   - AssistantConfig: Assistant process mode, polling and start timeout
//   - FilesConfig: Tree listing and local watch behavior
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (PROJCHAT_*)
//   - ~/.projchat/config.toml
//   - ~/.projchat/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := api.NewClientWithConfig(api.ClientConfig{
//	    BaseURL: cfg.Server.BaseURL,
//	    Timeout: cfg.Timeout(),
//	})
package config
