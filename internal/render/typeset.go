// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"strings"

	"github.com/wyatt915/treeblood"
)

// =============================================================================
// TYPESETTER
// =============================================================================

// Typesetter converts a single LaTeX expression (without delimiters) into
// markup. display selects display style for block math.
type Typesetter interface {
	Typeset(expr string, display bool) (string, error)
}

// TypesetterFunc adapts a function to the Typesetter interface.
type TypesetterFunc func(expr string, display bool) (string, error)

// Typeset calls f(expr, display).
func (f TypesetterFunc) Typeset(expr string, display bool) (string, error) {
	return f(expr, display)
}

// TypesetError describes an expression that could not be typeset.
type TypesetError struct {
	Expr   string
	Reason string
	Cause  error
}

func (e *TypesetError) Error() string {
	msg := "typeset " + quoteExpr(e.Expr) + ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *TypesetError) Unwrap() error {
	return e.Cause
}

func quoteExpr(expr string) string {
	const max = 40
	runes := []rune(expr)
	if len(runes) > max {
		expr = string(runes[:max-3]) + "..."
	}
	return fmt.Sprintf("%q", expr)
}

// =============================================================================
// MATHML TYPESETTER
// =============================================================================

// MathMLTypesetter renders LaTeX to MathML using treeblood.
type MathMLTypesetter struct {
	// Macros maps user command names (without the backslash) to their
	// LaTeX expansion.
	Macros map[string]string
}

// NewMathMLTypesetter creates a MathML typesetter with optional macros.
func NewMathMLTypesetter(macros map[string]string) *MathMLTypesetter {
	m := make(map[string]string, len(macros))
	for k, v := range macros {
		m[strings.TrimPrefix(k, `\`)] = v
	}
	return &MathMLTypesetter{Macros: m}
}

// Typeset implements Typesetter. Structural problems are reported before
// conversion and any panic inside the converter becomes an error.
func (t *MathMLTypesetter) Typeset(expr string, display bool) (out string, err error) {
	if err := checkBalanced(expr); err != nil {
		return "", err
	}

	defer func() {
		if r := recover(); r != nil {
			out = ""
			err = &TypesetError{Expr: expr, Reason: fmt.Sprintf("converter panic: %v", r)}
		}
	}()

	var macros map[string]string
	if len(t.Macros) > 0 {
		macros = t.Macros
	}
	if display {
		out, err = treeblood.DisplayStyle(expr, macros)
	} else {
		out, err = treeblood.InlineStyle(expr, macros)
	}
	if err != nil {
		return "", &TypesetError{Expr: expr, Reason: "conversion failed", Cause: err}
	}
	return strings.TrimSpace(out), nil
}

// checkBalanced verifies group braces, \left/\right pairs and
// \begin/\end environments. Escaped braces (\{ and \}) are literal.
func checkBalanced(expr string) error {
	depth := 0
	leftRight := 0
	var envs []string

	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '\\':
			name, n := commandName(expr[i+1:])
			if n == 0 {
				// \{ \} \\ and friends: skip the escaped character.
				i++
				continue
			}
			switch name {
			case "left":
				leftRight++
			case "right":
				leftRight--
				if leftRight < 0 {
					return &TypesetError{Expr: expr, Reason: `\right without matching \left`}
				}
			case "begin", "end":
				env, m, ok := braceArg(expr[i+1+n:])
				if !ok {
					return &TypesetError{Expr: expr, Reason: `\` + name + " without environment name"}
				}
				if name == "begin" {
					envs = append(envs, env)
				} else {
					if len(envs) == 0 || envs[len(envs)-1] != env {
						return &TypesetError{Expr: expr, Reason: `\end{` + env + `} does not close an open environment`}
					}
					envs = envs[:len(envs)-1]
				}
				i += m
			}
			i += n
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return &TypesetError{Expr: expr, Reason: "unexpected closing brace"}
			}
		}
	}

	switch {
	case depth > 0:
		return &TypesetError{Expr: expr, Reason: "unclosed brace"}
	case leftRight > 0:
		return &TypesetError{Expr: expr, Reason: `\left without matching \right`}
	case len(envs) > 0:
		return &TypesetError{Expr: expr, Reason: `\begin{` + envs[len(envs)-1] + `} is never closed`}
	}
	return nil
}

// commandName returns the alphabetic command name at the start of s.
func commandName(s string) (string, int) {
	n := 0
	for n < len(s) && (s[n] >= 'a' && s[n] <= 'z' || s[n] >= 'A' && s[n] <= 'Z') {
		n++
	}
	return s[:n], n
}

// braceArg reads a {name} argument, allowing leading spaces.
func braceArg(s string) (string, int, bool) {
	i := 0
	for i < len(s) && s[i] == ' ' {
		i++
	}
	if i >= len(s) || s[i] != '{' {
		return "", 0, false
	}
	end := strings.IndexByte(s[i:], '}')
	if end < 0 {
		return "", 0, false
	}
	return strings.TrimSpace(s[i+1 : i+end]), i + end + 1, true
}
