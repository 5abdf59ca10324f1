// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jeranaias/sqlchat/internal/render"
	"github.com/jeranaias/sqlchat/internal/storage"
	"github.com/jeranaias/sqlchat/internal/util"
)

// Validation errors shared by the exporters.
var (
	ErrNilChat       = errors.New("chat is nil")
	ErrEmptyChat     = errors.New("chat has no messages")
	ErrInvalidTime   = errors.New("chat has invalid creation timestamp")
	ErrUnknownFormat = errors.New("unknown export format")
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a chat to one output format.
type Exporter interface {
	// Export returns the encoded chat.
	Export(chat *storage.Chat) ([]byte, error)

	// FileExtension returns the extension including the dot, e.g. ".md".
	FileExtension() string

	// MimeType returns the content type for HTTP responses.
	MimeType() string
}

// Format names an export format.
type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat accepts a format name or a common alias ("md", "htm").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "html", "htm":
		return FormatHTML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// New returns the exporter for format. The renderer is used by the HTML
// exporter only; nil means render.Default().
func New(format Format, opts *Options, r *render.Renderer) (Exporter, error) {
	switch format {
	case FormatHTML:
		return NewHTMLExporter(opts, r), nil
	case FormatMarkdown:
		return NewMarkdownExporter(opts), nil
	case FormatJSON:
		return NewJSONExporter(opts), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is where ExportToFile writes. Default: "."
	OutputDir string

	// OpenAfterExport opens the file in the default application.
	OpenAfterExport bool

	// IncludeMetadata adds a header with title, dates and message count.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message times.
	IncludeTimestamps bool

	// Theme for HTML export ("light" or "dark"). Default: "light"
	Theme string
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Theme:             "light",
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ExportToFile exports chat and writes it atomically under
// opts.OutputDir as chat_<title>_<timestamp><ext>. It returns the path.
func ExportToFile(chat *storage.Chat, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}

	content, err := exporter.Export(chat)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("chat_%s_%s%s",
		util.SafeFilename(util.TruncateRunes(chat.Title, 50)),
		time.Now().Format("20060102_150405"),
		exporter.FileExtension(),
	)
	outputPath := filepath.Join(dir, filename)
	if err := util.AtomicWriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	if opts.OpenAfterExport {
		if err := openFile(outputPath); err != nil {
			// The file exists; failing to open it is not an export error.
			fmt.Printf("Warning: Could not open file: %v\n", err)
		}
	}
	return outputPath, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func validate(chat *storage.Chat) error {
	switch {
	case chat == nil:
		return ErrNilChat
	case len(chat.Messages) == 0:
		return ErrEmptyChat
	case chat.CreatedAt.IsZero():
		return ErrInvalidTime
	}
	return nil
}

// exportable returns the messages worth exporting: loading placeholders
// without text are skipped.
func exportable(msgs []storage.Message) []storage.Message {
	out := make([]storage.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsLoading && m.Content == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

func roleLabel(role storage.Role) string {
	switch role {
	case storage.RoleUser:
		return "You"
	case storage.RoleAssistant:
		return "Assistant"
	case "":
		return "Unknown"
	}
	r := []rune(string(role))
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// openFile opens a file in the default application for the OS.
func openFile(path string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", `""`, path)
	case "darwin":
		cmd = exec.Command("open", path)
	case "linux":
		cmd = exec.Command("xdg-open", path)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
