// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for sqlchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all sections
//   - BackendConfig: Chat backend URL, prompt and timeouts
//   - RenderConfig: Markdown, highlighting and LaTeX macro settings
//   - StorageConfig: Chat persistence driver and location
//   - ServerConfig: HTTP listen address, rate limit and CORS origins
//   - DemoConfig: Offline demo responder settings
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (SQLCHAT_*)
//   - ~/.sqlchat/config.toml
//   - ~/.sqlchat/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r := render.New(cfg.RenderOptions()...)
//	client := backend.NewClientWithConfig(cfg.BackendClientConfig())
package config
