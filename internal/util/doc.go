// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the sqlchat packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis (chat titles)
//   - TruncateWidth: display-width truncation for terminal rows
//   - FlattenLines: collapse newlines and runs of whitespace to single spaces
//   - SafeFilename: strip path and shell-hostile characters from a name
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	title := util.TruncateRunes(util.FlattenLines(firstMessage), 53)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
