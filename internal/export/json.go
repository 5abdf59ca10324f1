// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/sqlchat/internal/storage"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// jsonVersion is bumped when the envelope changes shape.
const jsonVersion = 1

// jsonEnvelope wraps the stored chat so exports can be told apart from raw
// store dumps.
type jsonEnvelope struct {
	Version    int          `json:"version"`
	ExportedAt time.Time    `json:"exportedAt"`
	Chat       storage.Chat `json:"chat"`
}

// JSONExporter writes the complete chat record. It ignores the metadata
// and timestamp options so the output can be re-imported as is.
type JSONExporter struct {
	options *Options
	now     func() time.Time
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts, now: time.Now}
}

// Export converts a chat to indented JSON.
func (e *JSONExporter) Export(chat *storage.Chat) ([]byte, error) {
	if chat == nil {
		return nil, ErrNilChat
	}
	return json.MarshalIndent(jsonEnvelope{
		Version:    jsonVersion,
		ExportedAt: e.now().UTC(),
		Chat:       *chat,
	}, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
