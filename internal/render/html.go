// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"bytes"

	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// Container class names used in the emitted HTML.
const (
	ClassBlockContainer  = "latex-block-container"
	ClassInlineContainer = "latex-inline-container"
	ClassError           = "latex-error"
	ClassTableWrapper    = "table-wrapper"
)

// ErrorHook is called for every expression that failed to typeset.
type ErrorHook func(span Span, err error)

// =============================================================================
// NODE RENDERER
// =============================================================================

// nodeRenderer emits math containers, highlighted code blocks and wrapped
// tables. Everything else is left to goldmark's HTML renderer.
type nodeRenderer struct {
	typesetter  Typesetter
	highlighter *Highlighter
	onError     ErrorHook
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *nodeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindMathInline, r.renderMathInline)
	reg.Register(KindMathBlock, r.renderMathBlock)
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCode)
	reg.Register(ast.KindCodeBlock, r.renderIndentedCode)
	reg.Register(extast.KindTable, r.renderTable)
}

func (r *nodeRenderer) renderMathInline(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*MathInline)
	if n.Display() {
		// Display math that could not be lifted out of its parent
		// (a heading, a table cell, emphasis).
		r.writeMath(w, n.Span, "div")
	} else {
		r.writeMath(w, n.Span, "span")
	}
	return ast.WalkSkipChildren, nil
}

func (r *nodeRenderer) renderMathBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	r.writeMath(w, node.(*MathBlock).Span, "div")
	_ = w.WriteByte('\n')
	return ast.WalkSkipChildren, nil
}

// writeMath writes the typeset span in its container, or the escaped raw
// span in an error container.
func (r *nodeRenderer) writeMath(w util.BufWriter, span Span, tag string) {
	markup, err := r.typeset(span)
	if err != nil {
		if r.onError != nil {
			r.onError(span, err)
		}
		_, _ = w.WriteString("<" + tag + ` class="` + ClassError + `">`)
		_, _ = w.WriteString(EscapeHTML(span.Raw))
		_, _ = w.WriteString("</" + tag + ">")
		return
	}

	class := ClassInlineContainer
	if span.Kind == SpanBlock {
		class = ClassBlockContainer
	}
	_, _ = w.WriteString("<" + tag + ` class="` + class + `">`)
	_, _ = w.WriteString(markup)
	_, _ = w.WriteString("</" + tag + ">")
}

func (r *nodeRenderer) typeset(span Span) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = "", &TypesetError{Expr: span.Expr, Reason: "typesetter panic"}
		}
	}()
	return r.typesetter.Typeset(span.Expr, span.Kind == SpanBlock)
}

func (r *nodeRenderer) renderFencedCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)
	var lang string
	if n.Info != nil {
		lang = string(n.Language(source))
	}
	_, _ = w.WriteString(r.highlighter.Highlight(codeText(n, source), lang))
	return ast.WalkSkipChildren, nil
}

func (r *nodeRenderer) renderIndentedCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	_, _ = w.WriteString(plainBlock(codeText(node, source)))
	return ast.WalkSkipChildren, nil
}

func (r *nodeRenderer) renderTable(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString(`<div class="` + ClassTableWrapper + `"><table>` + "\n")
	} else {
		_, _ = w.WriteString("</table></div>\n")
	}
	return ast.WalkContinue, nil
}

// codeText joins the raw lines of a code block.
func codeText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}
