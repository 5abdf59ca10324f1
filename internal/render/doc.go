// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render converts chat message text (markdown with embedded LaTeX
// and fenced code) into HTML for the browser client.
//
// LaTeX is recognized during inline parsing of the markdown tree rather than
// by rewriting the source text, so math never passes through the markdown
// grammar and code spans are never scanned for delimiters.
//
// # Delimiters
//
// Display math:
//
//	$$ ... $$    \[ ... \]    [ ... ]   (bracket followed/preceded by a space)
//
// Inline math:
//
//	$ ... $      \( ... \)    ( ... )   (parenthesis followed/preceded by a space)
//
// # Key Types
//
//   - Renderer: immutable markdown+math+highlight pipeline, safe for concurrent use
//   - Typesetter: converts one LaTeX expression to markup (MathML by default)
//   - Highlighter: chroma-based fenced code highlighting with an alias table
//   - Span: one LaTeX span found by FindSpans
//
// # Usage
//
//	r := render.New(render.WithHighlightStyle("github"))
//	html := r.Render("Euler: $e^{i\\pi} + 1 = 0$")
//
//	if render.ContainsLatex(text) {
//	    // load math fonts, etc.
//	}
//
// Render never fails. Malformed LaTeX becomes an escaped
// <span class="latex-error"> (or <div> for display math), and code in an
// unknown language is emitted escaped with no highlighting markup.
//
// Raw HTML in the source is passed through. Render text from untrusted
// users with WithSanitizer(SanitizedPolicy()).
package render
