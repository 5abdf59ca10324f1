// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/sqlchat/internal/render"
	"github.com/jeranaias/sqlchat/internal/storage"
)

func sampleChat() *storage.Chat {
	created := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	return &storage.Chat{
		ID:        "chat-1",
		Title:     "Revenue / growth?",
		CreatedAt: created,
		UpdatedAt: created.Add(time.Minute),
		Messages: []storage.Message{
			{ID: "m1", Role: storage.RoleUser, Content: "What is the growth rate?", Timestamp: created},
			{
				ID:        "m2",
				Role:      storage.RoleAssistant,
				Content:   "Growth is $\\frac{3}{4}$.\n\n```sql\nSELECT 1;\n```",
				Timestamp: created.Add(time.Second),
			},
			{ID: "m3", Role: storage.RoleAssistant, IsLoading: true, Timestamp: created.Add(2 * time.Second)},
		},
	}
}

// =============================================================================
// HTML
// =============================================================================

func TestHTMLExporter_RendersMessages(t *testing.T) {
	out, err := NewHTMLExporter(nil, render.New()).Export(sampleChat())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	page := string(out)

	for _, want := range []string{
		"<title>Revenue / growth?</title>",
		`<meta name="description" content="What is the growth rate?">`,
		render.ClassInlineContainer,
		`<pre class="chroma"><code class="language-sql">`,
		".chroma",
		`class="message user-message"`,
		`<body class="light-theme">`,
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Count(page, `class="message `) != 2 {
		t.Error("empty loading message should be skipped")
	}
}

func TestHTMLExporter_EscapesTitleAndFenceTag(t *testing.T) {
	chat := sampleChat()
	chat.Title = "<script>alert('x')</script>"
	chat.Messages[1].Content = "```<script>alert('xss')</script>\ncode here\n```"

	out, err := NewHTMLExporter(&Options{Theme: "dark"}, nil).Export(chat)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	page := string(out)
	if strings.Contains(page, "<script>alert(") {
		t.Error("script tag not escaped")
	}
	if !strings.Contains(page, `<body class="dark-theme">`) {
		t.Error("dark theme not applied")
	}
	if strings.Contains(page, `class="header"`) {
		t.Error("header should be omitted without IncludeMetadata")
	}
}

func TestHTMLExporter_Validation(t *testing.T) {
	e := NewHTMLExporter(nil, nil)

	if _, err := e.Export(nil); !errors.Is(err, ErrNilChat) {
		t.Errorf("nil chat: got %v", err)
	}
	if _, err := e.Export(&storage.Chat{CreatedAt: time.Now()}); !errors.Is(err, ErrEmptyChat) {
		t.Errorf("empty chat: got %v", err)
	}
	chat := sampleChat()
	chat.CreatedAt = time.Time{}
	if _, err := e.Export(chat); !errors.Is(err, ErrInvalidTime) {
		t.Errorf("zero time: got %v", err)
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<p>Hello <strong>world</strong></p>\n", "Hello world"},
		{`<p>Ratio <span class="latex-inline-container"><math><mn>1</mn></math></span> only</p>`, "Ratio only"},
		{"<pre><code>SELECT 1</code></pre><p>after</p>", "after"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := PlainText(tt.in); got != tt.want {
			t.Errorf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// =============================================================================
// MARKDOWN
// =============================================================================

func TestMarkdownExporter(t *testing.T) {
	out, err := NewMarkdownExporter(nil).Export(sampleChat())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	md := string(out)

	if !strings.HasPrefix(md, "---\ntitle: Revenue / growth?\n") {
		t.Errorf("unexpected frontmatter: %q", md[:40])
	}
	if !strings.Contains(md, "messages: 2\n") {
		t.Error("message count should skip loading placeholders")
	}
	if !strings.Contains(md, "Growth is $\\frac{3}{4}$.") {
		t.Error("math source should be kept verbatim")
	}
	if !strings.Contains(md, "### You <sub>09:26:53</sub>") {
		t.Error("missing user heading with timestamp")
	}
}

func TestMarkdownExporter_YAMLNewlineInjection(t *testing.T) {
	chat := sampleChat()
	chat.Title = "Test\nInjection: malicious"

	out, err := NewMarkdownExporter(nil).Export(chat)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	for _, line := range strings.Split(string(out), "\n")[:8] {
		if strings.HasPrefix(line, "Injection:") {
			t.Error("newline in title escaped the frontmatter")
		}
	}
	if !strings.Contains(string(out), `title: "Test\nInjection: malicious"`) {
		t.Error("title should be quoted and escaped")
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("#1 *cost* is $5"); got != `\#1 \*cost\* is \$5` {
		t.Errorf("escapeMarkdown = %q", got)
	}
}

// =============================================================================
// JSON
// =============================================================================

func TestJSONExporter(t *testing.T) {
	e := NewJSONExporter(nil)
	e.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	out, err := e.Export(sampleChat())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var env jsonEnvelope
	if err := json.Unmarshal(out, &env); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if env.Version != jsonVersion || env.Chat.ID != "chat-1" || len(env.Chat.Messages) != 3 {
		t.Errorf("unexpected envelope: %+v", env)
	}
	if !env.ExportedAt.Equal(e.now()) {
		t.Errorf("ExportedAt = %v", env.ExportedAt)
	}
}

// =============================================================================
// FORMATS AND FILES
// =============================================================================

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"":         FormatHTML,
		"HTML":     FormatHTML,
		"md":       FormatMarkdown,
		"markdown": FormatMarkdown,
		"json":     FormatJSON,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("pdf"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestNew(t *testing.T) {
	for _, f := range []Format{FormatHTML, FormatMarkdown, FormatJSON} {
		e, err := New(f, nil, nil)
		if err != nil {
			t.Fatalf("New(%q): %v", f, err)
		}
		if e.FileExtension() == "" || e.MimeType() == "" {
			t.Errorf("%q exporter missing extension or mime type", f)
		}
	}
	if _, err := New("pdf", nil, nil); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestExportToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	path, err := ExportToFile(sampleChat(), NewMarkdownExporter(nil), &Options{OutputDir: dir})
	if err != nil {
		t.Fatalf("ExportToFile failed: %v", err)
	}

	name := filepath.Base(path)
	if !strings.HasPrefix(name, "chat_Revenue_growth_") || !strings.HasSuffix(name, ".md") {
		t.Errorf("unexpected filename %q", name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "# Revenue / growth?") {
		t.Error("file content mismatch")
	}
}

func TestExportToFile_PropagatesExportError(t *testing.T) {
	_, err := ExportToFile(&storage.Chat{}, NewHTMLExporter(nil, nil), &Options{OutputDir: t.TempDir()})
	if !errors.Is(err, ErrEmptyChat) {
		t.Errorf("expected ErrEmptyChat, got %v", err)
	}
}
