// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// =============================================================================
// AST NODES
// =============================================================================

// KindMathInline is the node kind of MathInline.
var KindMathInline = ast.NewNodeKind("MathInline")

// KindMathBlock is the node kind of MathBlock.
var KindMathBlock = ast.NewNodeKind("MathBlock")

// MathInline is a LaTeX span found in inline content. Display math starts
// out as a MathInline with Display set; mathTransformer lifts it into a
// MathBlock when it sits directly in a paragraph.
type MathInline struct {
	ast.BaseInline
	Span Span
}

// Display reports whether the span is display math.
func (n *MathInline) Display() bool {
	return n.Span.Kind == SpanBlock
}

// Kind implements ast.Node.
func (n *MathInline) Kind() ast.NodeKind {
	return KindMathInline
}

// Dump implements ast.Node.
func (n *MathInline) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Kind": n.Span.Kind.String(),
		"Expr": n.Span.Expr,
	}, nil)
}

// MathBlock is display math standing on its own in the document flow.
type MathBlock struct {
	ast.BaseBlock
	Span Span
}

// Kind implements ast.Node.
func (n *MathBlock) Kind() ast.NodeKind {
	return KindMathBlock
}

// Dump implements ast.Node.
func (n *MathBlock) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Expr": n.Span.Expr,
	}, nil)
}

// =============================================================================
// INLINE PARSER
// =============================================================================

type mathParser struct{}

// newMathParser returns the inline parser for all six delimiter forms.
func newMathParser() parser.InlineParser {
	return &mathParser{}
}

// Trigger implements parser.InlineParser.
func (p *mathParser) Trigger() []byte {
	return []byte{'$', '\\', '[', '('}
}

var paragraphKey = parser.NewContextKey()

// paragraphText is the joined text of one block's lines. It is built once
// per block, so a delimiter whose closer is lines away costs no rescans.
type paragraphText struct {
	node   ast.Node
	text   []byte
	starts []int // offset of each line in text
	stops  *stopIndex
}

func paragraphFor(parent ast.Node, source []byte, pc parser.Context) *paragraphText {
	if cached, ok := pc.Get(paragraphKey).(*paragraphText); ok && cached.node == parent {
		return cached
	}
	lines := parent.Lines()
	pt := &paragraphText{node: parent, starts: make([]int, 0, lines.Len())}
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		pt.starts = append(pt.starts, len(pt.text))
		pt.text = append(pt.text, seg.Value(source)...)
	}
	pt.stops = newStopIndex(pt.text)
	pc.Set(paragraphKey, pt)
	return pt
}

// offset maps a reader position to an offset in text.
func (pt *paragraphText) offset(parent ast.Node, line int, pos text.Segment) int {
	seg := parent.Lines().At(line)
	return pt.starts[line] + (seg.Padding - pos.Padding) + (pos.Start - seg.Start)
}

// lineEnd returns the offset just past line in text.
func (pt *paragraphText) lineEnd(line int) int {
	if line+1 < len(pt.starts) {
		return pt.starts[line+1]
	}
	return len(pt.text)
}

// Parse implements parser.InlineParser. A span may close on a later line
// of the same block; on success the reader is moved past the closer.
func (p *mathParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	first, _ := block.PeekLine()
	if len(first) < 3 {
		return nil
	}
	line, pos := block.Position()
	if line >= parent.Lines().Len() {
		return nil
	}

	pt := paragraphFor(parent, block.Source(), pc)
	off := pt.offset(parent, line, pos)
	if off < 0 || off >= len(pt.text) {
		return nil
	}
	span, n, ok := matchAt(pt.text, off, pt.stops)
	if !ok {
		return nil
	}

	// Move past the span: whole lines first, then the rest of the last line.
	target := off + n
	start := off
	for l := line; l+1 < len(pt.starts) && target > pt.lineEnd(l); l++ {
		block.AdvanceLine()
		start = pt.starts[l+1]
	}
	block.Advance(target - start)

	return &MathInline{Span: span}
}

// =============================================================================
// AST TRANSFORMER
// =============================================================================

// mathTransformer splits paragraphs around display math so that a block
// container never ends up inside a <p>.
type mathTransformer struct{}

// Transform implements parser.ASTTransformer.
func (t *mathTransformer) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	var targets []ast.Node
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindParagraph, ast.KindTextBlock:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if m, ok := c.(*MathInline); ok && m.Display() {
					targets = append(targets, n)
					break
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	source := reader.Source()
	for _, para := range targets {
		splitParagraph(para, source)
	}
}

// splitParagraph replaces para with a run of paragraphs and MathBlocks.
// Text adjacent to the lifted math loses its surrounding whitespace and
// line break so the split paragraphs do not end in <br> or blank space.
func splitParagraph(para ast.Node, source []byte) {
	parent := para.Parent()
	if parent == nil {
		return
	}

	newPara := func() ast.Node {
		if para.Kind() == ast.KindTextBlock {
			return ast.NewTextBlock()
		}
		return ast.NewParagraph()
	}

	var out []ast.Node
	cur := newPara()
	flush := func() {
		trimTrailing(cur, source)
		if cur.HasChildren() && !isBlankInline(cur, source) {
			out = append(out, cur)
		}
		cur = newPara()
	}

	for c := para.FirstChild(); c != nil; {
		next := c.NextSibling()
		para.RemoveChild(para, c)
		if m, ok := c.(*MathInline); ok && m.Display() {
			flush()
			out = append(out, &MathBlock{Span: m.Span})
		} else if !cur.HasChildren() && trimLeading(c, source) {
			// Nothing but the line break after the math: drop it.
		} else {
			cur.AppendChild(cur, c)
		}
		c = next
	}
	flush()

	for _, n := range out {
		parent.InsertBefore(parent, para, n)
	}
	parent.RemoveChild(parent, para)
}

// trimLeading strips leading space from a text node and reports whether
// nothing is left of it.
func trimLeading(n ast.Node, source []byte) bool {
	t, ok := n.(*ast.Text)
	if !ok {
		return false
	}
	t.Segment = t.Segment.TrimLeftSpace(source)
	return t.Segment.IsEmpty()
}

func trimTrailing(para ast.Node, source []byte) {
	t, ok := para.LastChild().(*ast.Text)
	if !ok {
		return
	}
	t.Segment = t.Segment.TrimRightSpace(source)
	t.SetSoftLineBreak(false)
	t.SetHardLineBreak(false)
}

// isBlankInline reports whether every child is empty text.
func isBlankInline(n ast.Node, source []byte) bool {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		t, ok := c.(*ast.Text)
		if !ok || !util.IsBlank(t.Segment.Value(source)) {
			return false
		}
	}
	return true
}
