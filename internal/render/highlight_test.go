// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveLanguage(t *testing.T) {
	h := NewHighlighter(DefaultHighlightStyle, map[string]string{"SQLite": "sql"})

	tests := []struct {
		tag  string
		want string
	}{
		{"js", "javascript"},
		{"JS", "javascript"},
		{" py ", "python"},
		{"golang", "go"},
		{"psql", "postgresql"},
		{"sqlite", "sql"},
		{"go", "go"},
		{"nosuchlang", "nosuchlang"},
		{"", ""},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, h.ResolveLanguage(tt.tag), "tag %q", tt.tag)
	}
}

func TestHighlight_KnownLanguage(t *testing.T) {
	h := NewHighlighter(DefaultHighlightStyle, nil)
	out := h.Highlight("SELECT id FROM users WHERE id = 1;\n", "sql")

	require.True(t, strings.HasPrefix(out, `<pre class="chroma"><code class="language-sql">`))
	require.Contains(t, out, "<span class=")
	require.True(t, strings.HasSuffix(out, "</code></pre>\n"))
}

func TestHighlight_Alias(t *testing.T) {
	h := NewHighlighter(DefaultHighlightStyle, nil)
	out := h.Highlight("print('hi')\n", "py")
	require.Contains(t, out, `class="language-python"`)
}

func TestHighlight_UnknownLanguageEscapes(t *testing.T) {
	h := NewHighlighter(DefaultHighlightStyle, nil)
	out := h.Highlight(`& < > " '`, "nosuchlang")

	require.Equal(t, "<pre><code>&amp; &lt; &gt; &#34; &#39;</code></pre>\n", out)
}

func TestRender_UnknownFenceEscapes(t *testing.T) {
	out := newStubRenderer().Render("```nosuchlang\nif a < b && c > d { s = \"x\" + 'y' }\n```")

	require.Contains(t, out, "<pre><code>if a &lt; b &amp;&amp; c &gt; d { s = &#34;x&#34; + &#39;y&#39; }\n</code></pre>")
	require.NotContains(t, out, "chroma")
	require.NotContains(t, out, "<span")
}

func TestRender_FenceLanguageIsEscaped(t *testing.T) {
	out := newStubRenderer().Render("```<script>\nx\n```")
	require.NotContains(t, out, "<script>")
}

func TestRender_IndentedCodeIsPlain(t *testing.T) {
	out := newStubRenderer().Render("text\n\n    a < b\n")
	require.Contains(t, out, "<pre><code>a &lt; b\n</code></pre>")
}

func TestWriteCSS(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, NewHighlighter("monokai", nil).WriteCSS(&sb))
	require.Contains(t, sb.String(), ".chroma")
}

func TestEscapeHTML(t *testing.T) {
	require.Equal(t, "&amp;&lt;&gt;&#34;&#39;", EscapeHTML(`&<>"'`))
	require.Equal(t, "plain", EscapeHTML("plain"))
}

func TestResolveLanguage_Package(t *testing.T) {
	require.Equal(t, "typescript", ResolveLanguage("ts"))
	require.Equal(t, "bash", ResolveLanguage("zsh"))
	require.Equal(t, "html", ResolveLanguage("html"))
}
