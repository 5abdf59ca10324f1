// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"bytes"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// DefaultHighlightStyle is the chroma style used when none is configured.
const DefaultHighlightStyle = "github"

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a Renderer.
type Options struct {
	HardWraps      bool
	GFM            bool
	RawHTML        bool
	HighlightStyle string
	Aliases        map[string]string
	Macros         map[string]string
	Typesetter     Typesetter
	Sanitizer      *bluemonday.Policy
	OnError        ErrorHook
}

// DefaultOptions returns the options used by RenderMarkdownWithLatex:
// GitHub-flavoured markdown with single newlines rendered as <br> and raw
// HTML passed through. Untrusted input should be rendered with a sanitizer.
func DefaultOptions() Options {
	return Options{
		HardWraps:      true,
		GFM:            true,
		RawHTML:        true,
		HighlightStyle: DefaultHighlightStyle,
	}
}

// Option modifies Options.
type Option func(*Options)

// WithHardWraps toggles rendering single newlines as <br>.
func WithHardWraps(on bool) Option {
	return func(o *Options) { o.HardWraps = on }
}

// WithGFM toggles the GitHub extensions (tables, strikethrough, autolinks,
// task lists).
func WithGFM(on bool) Option {
	return func(o *Options) { o.GFM = on }
}

// WithRawHTML toggles passing raw HTML in the source through to the
// output. When off, goldmark replaces it with a comment.
func WithRawHTML(on bool) Option {
	return func(o *Options) { o.RawHTML = on }
}

// WithHighlightStyle selects the chroma style for code blocks.
func WithHighlightStyle(name string) Option {
	return func(o *Options) { o.HighlightStyle = name }
}

// WithAliases adds fence-tag aliases on top of DefaultAliases.
func WithAliases(aliases map[string]string) Option {
	return func(o *Options) { o.Aliases = aliases }
}

// WithMacros sets user LaTeX macros for the default typesetter.
func WithMacros(macros map[string]string) Option {
	return func(o *Options) { o.Macros = macros }
}

// WithTypesetter replaces the MathML typesetter.
func WithTypesetter(t Typesetter) Option {
	return func(o *Options) { o.Typesetter = t }
}

// WithSanitizer runs the final HTML through policy.
func WithSanitizer(policy *bluemonday.Policy) Option {
	return func(o *Options) { o.Sanitizer = policy }
}

// WithErrorHook registers a callback for expressions that fail to typeset.
func WithErrorHook(hook ErrorHook) Option {
	return func(o *Options) { o.OnError = hook }
}

// =============================================================================
// RENDERER
// =============================================================================

// Renderer converts chat message text into HTML. A Renderer is immutable
// after New and safe for concurrent use.
type Renderer struct {
	md          goldmark.Markdown
	highlighter *Highlighter
	sanitizer   *bluemonday.Policy
}

// New creates a Renderer. Zero options give DefaultOptions.
func New(opts ...Option) *Renderer {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.HighlightStyle == "" {
		o.HighlightStyle = DefaultHighlightStyle
	}
	if o.Typesetter == nil {
		o.Typesetter = NewMathMLTypesetter(o.Macros)
	}

	hl := NewHighlighter(o.HighlightStyle, o.Aliases)
	nr := &nodeRenderer{
		typesetter:  o.Typesetter,
		highlighter: hl,
		onError:     o.OnError,
	}

	var exts []goldmark.Extender
	if o.GFM {
		exts = append(exts, extension.GFM)
	}
	rendererOpts := []renderer.Option{
		renderer.WithNodeRenderers(util.Prioritized(nr, 100)),
	}
	if o.HardWraps {
		rendererOpts = append(rendererOpts, html.WithHardWraps())
	}
	if o.RawHTML {
		rendererOpts = append(rendererOpts, html.WithUnsafe())
	}

	md := goldmark.New(
		goldmark.WithExtensions(exts...),
		goldmark.WithParserOptions(
			parser.WithInlineParsers(util.Prioritized(newMathParser(), 50)),
			parser.WithASTTransformers(util.Prioritized(&mathTransformer{}, 100)),
		),
		goldmark.WithRendererOptions(rendererOpts...),
	)

	return &Renderer{
		md:          md,
		highlighter: hl,
		sanitizer:   o.Sanitizer,
	}
}

// Render converts text to HTML. It never fails: a typesetting error
// becomes an error container and anything worse falls back to the escaped
// input in a paragraph. Empty input gives empty output.
func (r *Renderer) Render(text string) (out string) {
	if text == "" {
		return ""
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = fallbackHTML(text)
		}
	}()

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return fallbackHTML(text)
	}
	if r.sanitizer != nil {
		return r.sanitizer.Sanitize(buf.String())
	}
	return buf.String()
}

// Highlighter returns the code highlighter, for stylesheet export.
func (r *Renderer) Highlighter() *Highlighter {
	return r.highlighter
}

func fallbackHTML(text string) string {
	return "<p>" + EscapeHTML(text) + "</p>\n"
}

// =============================================================================
// SANITIZER
// =============================================================================

// mathMLElements are the presentation MathML elements the typesetter emits.
var mathMLElements = []string{
	"math", "semantics", "annotation", "mrow", "mi", "mn", "mo", "ms",
	"mtext", "mspace", "msup", "msub", "msubsup", "mfrac", "msqrt", "mroot",
	"mover", "munder", "munderover", "mtable", "mtr", "mtd", "mstyle",
	"mpadded", "mphantom", "menclose", "merror",
}

// SanitizedPolicy returns a user-generated-content policy that keeps the
// renderer's containers, MathML and chroma classes.
func SanitizedPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements(mathMLElements...)
	p.AllowAttrs("class").OnElements("div", "span", "pre", "code")
	p.AllowAttrs("display", "xmlns").OnElements("math")
	p.AllowAttrs(
		"mathvariant", "stretchy", "fence", "separator", "lspace", "rspace",
		"accent", "accentunder", "movablelimits", "displaystyle", "scriptlevel",
		"linethickness", "columnalign", "rowspacing", "columnspacing", "width",
		"encoding",
	).Globally()
	return p
}

// =============================================================================
// PACKAGE DEFAULT
// =============================================================================

var (
	defaultRenderer *Renderer
	defaultOnce     sync.Once
)

// Default returns the shared renderer built from DefaultOptions.
func Default() *Renderer {
	defaultOnce.Do(func() {
		defaultRenderer = New()
	})
	return defaultRenderer
}

// RenderMarkdownWithLatex renders text with the default renderer.
func RenderMarkdownWithLatex(text string) string {
	return Default().Render(text)
}
