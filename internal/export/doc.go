// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes chats to shareable files.
//
// # Key Types
//
//   - Format: export format (html, markdown, json)
//   - Exporter: converts one chat to bytes
//   - Options: metadata, timestamps, theme and output directory
//
// # Supported Formats
//
//   - HTML: standalone page with every message rendered, math typeset as
//     MathML and code highlighted with an embedded chroma stylesheet
//   - Markdown: the raw message text with YAML frontmatter
//   - JSON: the stored chat record wrapped in a small envelope
//
// # Usage
//
//	exp, err := export.New(export.FormatHTML, nil, render.Default())
//	if err != nil {
//	    return err
//	}
//	path, err := export.ExportToFile(&chat, exp, &export.Options{OutputDir: "."})
package export
