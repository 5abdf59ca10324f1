// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render_cmd.go - The render and scan commands.
//
//	sqlchat render notes.md > notes.html
//	sqlchat render --check -
//	sqlchat scan notes.md --json

package cli

import (
	"fmt"
	"io"

	"github.com/jeranaias/sqlchat/internal/render"
	"github.com/jeranaias/sqlchat/internal/util"
)

// HandleRender renders markdown with LaTeX to HTML on stdout.
func HandleRender(env *Env, args *ArgParser) error {
	cfg, err := env.loadConfig(args)
	if err != nil {
		return err
	}
	r := newRenderer(cfg, stderrHook(env.Stderr))

	if args.BoolFlag("css") {
		return commandError("render", "css", r.Highlighter().WriteCSS(env.Stdout))
	}

	input, err := readInput(env, args.Positional(1))
	if err != nil {
		return commandError("render", "read", err)
	}

	if args.BoolFlag("check") {
		_, err := fmt.Fprintln(env.Stdout, render.ContainsLatex(input))
		return err
	}

	_, err = io.WriteString(env.Stdout, r.Render(input))
	return err
}

// SpanInfo is one scan result.
type SpanInfo struct {
	Offset    int    `json:"offset"`
	Kind      string `json:"kind"`
	Delimiter string `json:"delimiter"`
	Expr      string `json:"expr"`
}

// HandleScan lists the LaTeX spans found in the input.
func HandleScan(env *Env, args *ArgParser) error {
	input, err := readInput(env, args.Positional(1))
	if err != nil {
		return commandError("scan", "read", err)
	}

	spans := render.FindSpans(input)
	infos := make([]SpanInfo, 0, len(spans))
	for _, s := range spans {
		infos = append(infos, SpanInfo{
			Offset:    s.Offset,
			Kind:      s.Kind.String(),
			Delimiter: s.Delim.String(),
			Expr:      s.Expr,
		})
	}

	if args.BoolFlag("json") {
		return NewJSONResponse("scan", infos).Write(env.Stdout)
	}

	if len(infos) == 0 {
		fmt.Fprintln(env.Stdout, "No LaTeX found.")
		return nil
	}
	fmt.Fprintf(env.Stdout, "%-8s %-7s %-6s %s\n", "OFFSET", "KIND", "DELIM", "EXPRESSION")
	for _, s := range infos {
		fmt.Fprintf(env.Stdout, "%-8d %-7s %-6s %s\n",
			s.Offset, s.Kind, s.Delimiter, util.TruncateRunes(util.FlattenLines(s.Expr), 60))
	}
	return nil
}
