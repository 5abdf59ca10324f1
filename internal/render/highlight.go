// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"html"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// =============================================================================
// LANGUAGE ALIASES
// =============================================================================

// DefaultAliases maps short fence tags to canonical grammar names.
var DefaultAliases = map[string]string{
	"js":         "javascript",
	"jsx":        "javascript",
	"ts":         "typescript",
	"tsx":        "typescript",
	"py":         "python",
	"py3":        "python",
	"sh":         "bash",
	"shell":      "bash",
	"zsh":        "bash",
	"console":    "bash",
	"yml":        "yaml",
	"md":         "markdown",
	"rb":         "ruby",
	"rs":         "rust",
	"golang":     "go",
	"psql":       "postgresql",
	"pgsql":      "postgresql",
	"postgres":   "postgresql",
	"c++":        "cpp",
	"cc":         "cpp",
	"hpp":        "cpp",
	"cs":         "csharp",
	"c#":         "csharp",
	"kt":         "kotlin",
	"ps1":        "powershell",
	"pwsh":       "powershell",
	"dockerfile": "docker",
	"tex":        "latex",
	"htm":        "html",
	"jsonc":      "json",
}

// =============================================================================
// HIGHLIGHTER
// =============================================================================

// Highlighter renders fenced code through chroma. It holds no mutable
// state after construction and is safe for concurrent use.
type Highlighter struct {
	aliases   map[string]string
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

// NewHighlighter creates a highlighter for the named chroma style. extra
// aliases are layered over DefaultAliases.
func NewHighlighter(styleName string, extra map[string]string) *Highlighter {
	aliases := make(map[string]string, len(DefaultAliases)+len(extra))
	for k, v := range DefaultAliases {
		aliases[k] = v
	}
	for k, v := range extra {
		aliases[strings.ToLower(k)] = strings.ToLower(v)
	}

	return &Highlighter{
		aliases: aliases,
		style:   styles.Get(styleName),
		formatter: chromahtml.New(
			chromahtml.WithClasses(true),
			chromahtml.PreventSurroundingPre(true),
		),
	}
}

// ResolveLanguage maps a fence tag to its canonical grammar name using the
// alias table. Unknown tags are returned lower-cased.
func (h *Highlighter) ResolveLanguage(tag string) string {
	return resolveAlias(h.aliases, tag)
}

// ResolveLanguage resolves tag against DefaultAliases only.
func ResolveLanguage(tag string) string {
	return resolveAlias(DefaultAliases, tag)
}

func resolveAlias(aliases map[string]string, tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if canonical, ok := aliases[tag]; ok {
		return canonical
	}
	return tag
}

// lexer returns the chroma lexer for a canonical name, or nil.
func (h *Highlighter) lexer(name string) chroma.Lexer {
	if name == "" {
		return nil
	}
	l := lexers.Get(name)
	if l == nil {
		return nil
	}
	return chroma.Coalesce(l)
}

// Highlight renders code as a complete <pre> element. Unknown or missing
// languages, and any highlighting failure, fall back to escaped plain text.
func (h *Highlighter) Highlight(code, tag string) (out string) {
	name := h.ResolveLanguage(tag)
	lexer := h.lexer(name)
	if lexer == nil {
		return plainBlock(code)
	}

	defer func() {
		if r := recover(); r != nil {
			out = plainBlock(code)
		}
	}()

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return plainBlock(code)
	}

	var sb strings.Builder
	sb.WriteString(`<pre class="chroma"><code class="language-`)
	sb.WriteString(EscapeHTML(name))
	sb.WriteString(`">`)
	if err := h.formatter.Format(&sb, h.style, iterator); err != nil {
		return plainBlock(code)
	}
	sb.WriteString("</code></pre>\n")
	return sb.String()
}

// WriteCSS writes the stylesheet for the highlighter's style.
func (h *Highlighter) WriteCSS(w io.Writer) error {
	return h.formatter.WriteCSS(w, h.style)
}

// plainBlock is the unhighlighted fallback.
func plainBlock(code string) string {
	return "<pre><code>" + EscapeHTML(code) + "</code></pre>\n"
}

// EscapeHTML escapes the five reserved HTML characters: & < > " '.
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}
