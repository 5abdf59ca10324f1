// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"bytes"
	"strings"
)

// =============================================================================
// SPAN TYPES
// =============================================================================

// SpanKind distinguishes display math from inline math.
type SpanKind int

const (
	// SpanBlock is display math: $$..$$, \[..\] or [ .. ].
	SpanBlock SpanKind = iota
	// SpanInline is inline math: $..$, \(..\) or ( .. ).
	SpanInline
)

// String returns the kind name.
func (k SpanKind) String() string {
	if k == SpanBlock {
		return "block"
	}
	return "inline"
}

// Delimiter identifies which of the six delimiter forms matched.
type Delimiter int

const (
	DelimDoubleDollar  Delimiter = iota // $$ .. $$
	DelimBracket                        // \[ .. \]
	DelimBareBracket                    // [ .. ]
	DelimDollar                         // $ .. $
	DelimParen                          // \( .. \)
	DelimBareParen                      // ( .. )
)

var delimOpeners = [...]string{"$$", `\[`, "[", "$", `\(`, "("}

// String returns the opening delimiter, e.g. "$$" or `\(`.
func (d Delimiter) String() string {
	if d < 0 || int(d) >= len(delimOpeners) {
		return "?"
	}
	return delimOpeners[d]
}

// Kind returns the span kind the delimiter produces.
func (d Delimiter) Kind() SpanKind {
	if d <= DelimBareBracket {
		return SpanBlock
	}
	return SpanInline
}

// Span is one LaTeX span located in source text.
type Span struct {
	Kind   SpanKind
	Delim  Delimiter
	Expr   string // trimmed expression, without delimiters
	Raw    string // the full matched text, delimiters included
	Offset int    // byte offset of Raw in the scanned text
}

// =============================================================================
// DELIMITER MATCHING
// =============================================================================

// delimForm describes one opener/closer pair. The body may not contain stop.
type delimForm struct {
	delim     Delimiter
	open      string
	close     string
	stop      byte // first occurrence of this byte decides the match
	noNewline bool
}

// Block forms come first: at a given position a display form wins over an
// inline form.
var delimForms = []delimForm{
	{delim: DelimDoubleDollar, open: "$$", close: "$$", stop: '$'},
	{delim: DelimBracket, open: `\[`, close: `\]`, stop: ']'},
	{delim: DelimBareBracket, open: "[ ", close: " ]", stop: ']'},
	{delim: DelimDollar, open: "$", close: "$", stop: '$', noNewline: true},
	{delim: DelimParen, open: `\(`, close: `\)`, stop: ')'},
	{delim: DelimBareParen, open: "( ", close: " )", stop: ')'},
}

// isTrigger reports whether c can start a delimiter.
func isTrigger(c byte) bool {
	return c == '$' || c == '\\' || c == '[' || c == '('
}

// stopIndex answers "where is the next b at or after pos" for the stop
// bytes of delimForms. It remembers the last answer per byte, so a caller
// moving forward through src scans every byte at most once per stop byte.
type stopIndex struct {
	src   []byte
	from  [3]int
	at    [3]int
	known [3]bool
}

func newStopIndex(src []byte) *stopIndex {
	return &stopIndex{src: src}
}

func stopSlot(b byte) int {
	switch b {
	case '$':
		return 0
	case ']':
		return 1
	default:
		return 2
	}
}

// next returns the index of the first b in src at or after pos, or -1.
func (x *stopIndex) next(b byte, pos int) int {
	i := stopSlot(b)
	if x.known[i] && pos >= x.from[i] && (x.at[i] < 0 || pos <= x.at[i]) {
		return x.at[i]
	}
	at := -1
	if pos < len(x.src) {
		if j := bytes.IndexByte(x.src[pos:], b); j >= 0 {
			at = pos + j
		}
	}
	x.from[i], x.at[i], x.known[i] = pos, at, true
	return at
}

// matchAt tries every delimiter form at src[at:] and returns the span and
// the number of bytes it covers. stops must index src.
func matchAt(src []byte, at int, stops *stopIndex) (Span, int, bool) {
	for _, f := range delimForms {
		if span, n, ok := f.match(src, at, stops); ok {
			return span, n, true
		}
	}
	return Span{}, 0, false
}

func (f delimForm) match(src []byte, at int, stops *stopIndex) (Span, int, bool) {
	if !bytes.HasPrefix(src[at:], []byte(f.open)) {
		return Span{}, 0, false
	}
	body := at + len(f.open)
	if body >= len(src) || src[body] == f.stop {
		// Empty body.
		return Span{}, 0, false
	}

	// The body is a non-empty run without the stop byte, so the first stop
	// byte is the only candidate for the closer.
	idx := stops.next(f.stop, body)
	if idx < 0 {
		return Span{}, 0, false
	}
	if f.noNewline && bytes.IndexByte(src[body:idx], '\n') >= 0 {
		return Span{}, 0, false
	}

	// Closer is the stop byte plus whatever precedes it in the close string.
	closeStart := idx - (len(f.close) - 1)
	if f.close[0] == f.stop {
		// "$$": the closer starts at the stop byte.
		closeStart = idx
	}
	if closeStart <= body {
		return Span{}, 0, false
	}
	end := closeStart + len(f.close)
	if end > len(src) || string(src[closeStart:end]) != f.close {
		return Span{}, 0, false
	}

	expr := strings.TrimSpace(string(src[body:closeStart]))
	if expr == "" {
		return Span{}, 0, false
	}
	return Span{
		Kind:  f.delim.Kind(),
		Delim: f.delim,
		Expr:  expr,
		Raw:   string(src[at:end]),
	}, end - at, true
}

// =============================================================================
// TEXT SCANNING
// =============================================================================

// FindSpans returns every LaTeX span in text, scanning left to right. At
// each position display forms are tried before inline forms and matches do
// not overlap. Markdown structure is not considered: a span inside a code
// fence is reported here even though Render leaves it alone.
func FindSpans(text string) []Span {
	var spans []Span
	scanSpans(text, func(s Span) bool {
		spans = append(spans, s)
		return true
	})
	return spans
}

// ContainsLatex reports whether text contains at least one block or inline
// LaTeX span. Each call is independent of any other.
func ContainsLatex(text string) bool {
	found := false
	scanSpans(text, func(Span) bool {
		found = true
		return false
	})
	return found
}

// scanSpans calls fn for each span until fn returns false.
func scanSpans(text string, fn func(Span) bool) {
	src := []byte(text)
	stops := newStopIndex(src)
	for i := 0; i < len(src); {
		c := src[i]
		if !isTrigger(c) {
			i++
			continue
		}
		// \$ and \\( are escapes, not openers.
		if c == '\\' && i+1 < len(src) && src[i+1] != '[' && src[i+1] != '(' {
			i += 2
			continue
		}
		span, n, ok := matchAt(src, i, stops)
		if !ok {
			if c == '\\' {
				// An escaped [ or ( cannot open a bare form either.
				i++
			}
			i++
			continue
		}
		span.Offset = i
		if !fn(span) {
			return
		}
		i += n
	}
}
