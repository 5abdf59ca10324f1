// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the sqlchat command line.
//
// # Key Types
//
//   - Command: The available subcommands
//   - ArgParser: Flag and positional argument parsing shared by commands
//   - Env: Streams and configuration a command runs with
//   - Repl: The interactive chat loop, independent of the terminal
//   - ConfigWatcher: Debounced config file change notification
//
// # Usage
//
//	os.Exit(cli.Run(context.Background(), os.Args[1:], cli.DefaultEnv()))
//
// # Commands Overview
//
//   - chat: Interactive chat with history, or line-by-line from a pipe
//   - serve: HTTP API with config hot reload
//   - render, scan: Markdown and LaTeX tools for files or stdin
//   - export: Chat export as HTML, markdown or JSON
//   - config: Show and edit ~/.sqlchat/config.toml
package cli
