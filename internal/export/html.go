// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/jeranaias/sqlchat/internal/render"
	"github.com/jeranaias/sqlchat/internal/storage"
	"github.com/jeranaias/sqlchat/internal/util"
)

// maxDescriptionRunes bounds the <meta name="description"> text.
const maxDescriptionRunes = 160

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter writes a standalone page. Every message goes through the
// renderer, so math arrives as MathML and code as chroma spans; the
// chroma stylesheet for the renderer's style is embedded.
type HTMLExporter struct {
	options  *Options
	renderer *render.Renderer
}

// NewHTMLExporter creates a new HTML exporter. A nil renderer uses
// render.Default().
func NewHTMLExporter(opts *Options, r *render.Renderer) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	if r == nil {
		r = render.Default()
	}
	return &HTMLExporter{options: opts, renderer: r}
}

// Export converts a chat to an HTML page.
func (e *HTMLExporter) Export(chat *storage.Chat) ([]byte, error) {
	if err := validate(chat); err != nil {
		return nil, err
	}
	msgs := exportable(chat.Messages)

	rendered := make([]string, len(msgs))
	for i, m := range msgs {
		rendered[i] = e.renderer.Render(m.Content)
	}

	theme := e.options.Theme
	if theme != "dark" {
		theme = "light"
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "    <title>%s</title>\n", html.EscapeString(chat.Title))
	sb.WriteString("    <meta name=\"generator\" content=\"sqlchat\">\n")
	fmt.Fprintf(&sb, "    <meta name=\"date\" content=\"%s\">\n", chat.CreatedAt.Format(time.RFC3339))
	if len(rendered) > 0 {
		if desc := PlainText(rendered[0]); desc != "" {
			fmt.Fprintf(&sb, "    <meta name=\"description\" content=\"%s\">\n",
				html.EscapeString(util.TruncateRunes(desc, maxDescriptionRunes)))
		}
	}
	if err := e.writeCSS(&sb); err != nil {
		return nil, fmt.Errorf("write stylesheet: %w", err)
	}
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n", theme)
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		e.writeHeader(&sb, chat, len(msgs))
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for i, m := range msgs {
		e.writeMessage(&sb, m, rendered[i])
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	fmt.Fprintf(&sb, "            <p>Exported from <strong>sqlchat</strong> on %s</p>\n",
		time.Now().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("        </footer>\n")
	sb.WriteString("    </div>\n")
	sb.WriteString(themeScript)
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html; charset=utf-8"
}

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

func (e *HTMLExporter) writeHeader(sb *strings.Builder, chat *storage.Chat, count int) {
	sb.WriteString("        <header class=\"header\">\n")
	fmt.Fprintf(sb, "            <h1>%s</h1>\n", html.EscapeString(chat.Title))
	sb.WriteString("            <div class=\"metadata\">\n")
	fmt.Fprintf(sb, "                <span class=\"meta-item\"><strong>Created:</strong> %s</span>\n", formatTimestamp(chat.CreatedAt))
	fmt.Fprintf(sb, "                <span class=\"meta-item\"><strong>Updated:</strong> %s</span>\n", formatTimestamp(chat.UpdatedAt))
	fmt.Fprintf(sb, "                <span class=\"meta-item\"><strong>Messages:</strong> %d</span>\n", count)
	sb.WriteString("                <button class=\"theme-toggle\" onclick=\"toggleTheme()\" title=\"Toggle theme\">[Theme]</button>\n")
	sb.WriteString("            </div>\n")
	sb.WriteString("        </header>\n")
}

func (e *HTMLExporter) writeMessage(sb *strings.Builder, msg storage.Message, body string) {
	fmt.Fprintf(sb, "            <div class=\"message %s-message\">\n", html.EscapeString(string(msg.Role)))
	sb.WriteString("                <div class=\"message-header\">\n")
	fmt.Fprintf(sb, "                    <span class=\"role-label\">%s</span>\n", html.EscapeString(roleLabel(msg.Role)))
	if e.options.IncludeTimestamps {
		fmt.Fprintf(sb, "                    <span class=\"timestamp\">%s</span>\n", formatShortTimestamp(msg.Timestamp))
	}
	sb.WriteString("                </div>\n")
	sb.WriteString("                <div class=\"message-content\">\n")
	sb.WriteString(body)
	sb.WriteString("                </div>\n")
	sb.WriteString("            </div>\n")
}

func (e *HTMLExporter) writeCSS(w io.StringWriter) error {
	var chroma strings.Builder
	if err := e.renderer.Highlighter().WriteCSS(&chroma); err != nil {
		return err
	}
	w.WriteString("    <style>\n")
	w.WriteString(pageCSS)
	w.WriteString(chroma.String())
	w.WriteString("    </style>\n")
	return nil
}

// =============================================================================
// PLAIN TEXT
// =============================================================================

// skipText lists elements whose text does not belong in a summary.
var skipText = map[string]bool{
	"math":   true,
	"pre":    true,
	"script": true,
	"style":  true,
}

// PlainText extracts the readable text of an HTML fragment with
// whitespace collapsed. Math and code blocks are left out.
func PlainText(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var sb strings.Builder
	depth := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return util.FlattenLines(sb.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			if skipText[string(name)] {
				depth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if skipText[string(name)] && depth > 0 {
				depth--
			}
			sb.WriteByte(' ')
		case html.TextToken:
			if depth == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

// =============================================================================
// EMBEDDED ASSETS
// =============================================================================

const pageCSS = `        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            --font-mono: "SF Mono", "Monaco", "Inconsolata", "Fira Code", "Source Code Pro", monospace;
        }

        .light-theme {
            --bg-primary: #ffffff;
            --bg-secondary: #f7f8fa;
            --bg-tertiary: #e1e4e8;
            --text-primary: #24292e;
            --text-muted: #6a737d;
            --border-color: #e1e4e8;
            --user-bg: #eef4ff;
            --code-bg: #f6f8fa;
            --accent-red: #d73a49;
        }

        .dark-theme {
            --bg-primary: #1a1b26;
            --bg-secondary: #24283b;
            --bg-tertiary: #414868;
            --text-primary: #c0caf5;
            --text-muted: #565f89;
            --border-color: #414868;
            --user-bg: #1f2335;
            --code-bg: #1a1b26;
            --accent-red: #f7768e;
        }

        body {
            font-family: var(--font-sans);
            line-height: 1.6;
            color: var(--text-primary);
            background: var(--bg-primary);
            padding: 20px;
        }

        .container { max-width: 900px; margin: 0 auto; background: var(--bg-secondary); border-radius: 12px; overflow: hidden; }
        .header { padding: 32px; background: var(--bg-tertiary); }
        .header h1 { font-size: 26px; margin-bottom: 12px; }
        .metadata { display: flex; flex-wrap: wrap; gap: 16px; font-size: 14px; color: var(--text-muted); }
        .theme-toggle { margin-left: auto; cursor: pointer; background: none; border: 1px solid var(--border-color); color: inherit; padding: 2px 8px; border-radius: 6px; }
        .conversation { padding: 24px 32px; }
        .message { padding: 20px; margin-bottom: 16px; border-radius: 8px; border: 1px solid var(--border-color); }
        .user-message { background: var(--user-bg); }
        .message-header { display: flex; justify-content: space-between; margin-bottom: 8px; font-weight: 600; }
        .timestamp { font-weight: 400; font-size: 13px; color: var(--text-muted); }
        .message-content p { margin: 0.5em 0; }
        .message-content pre { background: var(--code-bg); padding: 12px; border-radius: 6px; overflow-x: auto; font-family: var(--font-mono); font-size: 14px; }
        .message-content code { font-family: var(--font-mono); }
        .table-wrapper { overflow-x: auto; margin: 0.75em 0; }
        .table-wrapper table { border-collapse: collapse; }
        .table-wrapper th, .table-wrapper td { border: 1px solid var(--border-color); padding: 4px 10px; }
        .latex-block-container { margin: 1em 0; overflow-x: auto; text-align: center; }
        .latex-inline-container { display: inline; }
        .latex-error { color: var(--accent-red); font-family: var(--font-mono); }
        math[display="block"] { display: block; }
        .footer { padding: 20px 32px; text-align: center; font-size: 14px; color: var(--text-muted); border-top: 1px solid var(--border-color); }

        @media print {
            body { padding: 0; }
            .theme-toggle { display: none; }
            .message { page-break-inside: avoid; }
        }

`

const themeScript = `    <script>
        function toggleTheme() {
            const body = document.body;
            const next = body.classList.contains('dark-theme') ? 'light' : 'dark';
            body.classList.remove('dark-theme', 'light-theme');
            body.classList.add(next + '-theme');
            localStorage.setItem('theme', next);
        }
        document.addEventListener('DOMContentLoaded', function() {
            const saved = localStorage.getItem('theme');
            if (saved) {
                document.body.classList.remove('dark-theme', 'light-theme');
                document.body.classList.add(saved + '-theme');
            }
        });
    </script>
`
