// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// SPAN DETECTION TESTS
// =============================================================================

func TestFindSpans_DelimiterForms(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  SpanKind
		delim Delimiter
		expr  string
	}{
		{"double dollar", "$$x^2$$", SpanBlock, DelimDoubleDollar, "x^2"},
		{"escaped bracket", `\[x\]`, SpanBlock, DelimBracket, "x"},
		{"bare bracket", "[ x + y ]", SpanBlock, DelimBareBracket, "x + y"},
		{"single dollar", "$a=b$", SpanInline, DelimDollar, "a=b"},
		{"escaped paren", `\(y\)`, SpanInline, DelimParen, "y"},
		{"bare paren", "( z )", SpanInline, DelimBareParen, "z"},
		{"multi-line block", "$$\na+b\n$$", SpanBlock, DelimDoubleDollar, "a+b"},
		{"padded expression", "$$  c  $$", SpanBlock, DelimDoubleDollar, "c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans := FindSpans(tt.input)
			require.Len(t, spans, 1)
			require.Equal(t, tt.kind, spans[0].Kind)
			require.Equal(t, tt.delim, spans[0].Delim)
			require.Equal(t, tt.expr, spans[0].Expr)
			require.Equal(t, tt.input, spans[0].Raw)
			require.Equal(t, 0, spans[0].Offset)
		})
	}
}

func TestFindSpans_NoMatch(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"plain prose", "Just some words."},
		{"whitespace-only dollar", "$ $"},
		{"whitespace-only double dollar", "$$   $$"},
		{"inline dollar across newline", "$a\nb$"},
		{"bracket without spaces", "[x]"},
		{"paren without spaces", "(x)"},
		{"escaped dollars", `price \$5 and \$6`},
		{"unclosed", "$$x"},
		{"lone trigger characters", `$ \ [ (`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Empty(t, FindSpans(tt.input))
			require.False(t, ContainsLatex(tt.input))
		})
	}
}

func TestFindSpans_OrderAndOffsets(t *testing.T) {
	spans := FindSpans("$$a$$ then $b$")
	require.Len(t, spans, 2)

	require.Equal(t, SpanBlock, spans[0].Kind)
	require.Equal(t, 0, spans[0].Offset)
	require.Equal(t, SpanInline, spans[1].Kind)
	require.Equal(t, 11, spans[1].Offset)
	require.Equal(t, "b", spans[1].Expr)
}

func TestFindSpans_BlockBeatsInline(t *testing.T) {
	// At the same position "$$" is display math, never two empty inlines.
	spans := FindSpans("$$x$$")
	require.Len(t, spans, 1)
	require.Equal(t, SpanBlock, spans[0].Kind)
}

func TestContainsLatex(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"", false},
		{"no math here", false},
		{"Use $x$ inline", true},
		{"Display: $$\\sum_i i$$", true},
		{`\(a\)`, true},
		{"[ a ]", true},
		{"```\n$x$\n```", true},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, ContainsLatex(tt.input), "input %q", tt.input)
	}
}

func TestContainsLatex_Independent(t *testing.T) {
	// Repeated calls with alternating inputs must not influence each other.
	for i := 0; i < 3; i++ {
		require.True(t, ContainsLatex("$x$"))
		require.False(t, ContainsLatex("x"))
	}
}

func TestSpanKind_String(t *testing.T) {
	require.Equal(t, "block", SpanBlock.String())
	require.Equal(t, "inline", SpanInline.String())
}

func TestDelimiter_String(t *testing.T) {
	require.Equal(t, "$$", DelimDoubleDollar.String())
	require.Equal(t, `\(`, DelimParen.String())
	require.Equal(t, "(", DelimBareParen.String())
	require.Equal(t, "?", Delimiter(42).String())
}

func TestStopIndex_Next(t *testing.T) {
	x := newStopIndex([]byte("a]b]c$d)"))

	lookups := []struct {
		b    byte
		pos  int
		want int
	}{
		{']', 0, 1},
		{']', 1, 1},
		{']', 2, 3},
		{']', 4, -1},
		{']', 7, -1},
		{'$', 0, 5},
		{'$', 6, -1},
		{')', 3, 7},
		{')', 8, -1},
		{']', 0, 1}, // backwards lookups still answer correctly
	}
	for _, l := range lookups {
		require.Equal(t, l.want, x.next(l.b, l.pos), "next(%q, %d)", l.b, l.pos)
	}
}

func TestFindSpans_SharedStopByte(t *testing.T) {
	// Every opener shares the one closer; only the first span may use it.
	spans := FindSpans(`[ a [ b \[ c ]`)
	require.Len(t, spans, 1)
	require.Equal(t, DelimBareBracket, spans[0].Delim)
	require.Equal(t, `a [ b \[ c`, spans[0].Expr)
}
